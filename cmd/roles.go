/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/hazardwatch/apiserver/internal/db"
	"github.com/hazardwatch/apiserver/internal/services"
	"github.com/hazardwatch/apiserver/internal/store"
	"github.com/hazardwatch/apiserver/types"
	"github.com/spf13/cobra"
)

var (
	roleEmail string
	roleNames []string
)

// rolesCmd represents the roles command
var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage user role grants",
}

var rolesGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant roles to a user",
	Example: `  hazardwatch roles grant --email ops@example.com --role roads_admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRoles(cmd, true)
	},
}

var rolesRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke roles from a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRoles(cmd, false)
	},
}

func changeRoles(cmd *cobra.Command, grant bool) error {
	roles := make([]types.Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := types.ParseRole(name)
		if err != nil {
			return err
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return fmt.Errorf("at least one --role is required")
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	conn, err := db.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	users := services.NewUserService(store.NewUserRepository(conn))
	roleService := services.NewRoleService(store.NewRoleRepository(conn))

	user, err := users.GetByEmail(cmd.Context(), roleEmail)
	if err != nil {
		return fmt.Errorf("look up %s: %w", roleEmail, err)
	}

	if grant {
		err = roleService.Grant(cmd.Context(), user.ID, roles...)
	} else {
		err = roleService.Revoke(cmd.Context(), user.ID, roles...)
	}
	if err != nil {
		return err
	}

	set, err := roleService.Resolve(cmd.Context(), types.AuthenticatedIdentity(user.ID))
	if err != nil {
		return err
	}
	logger.Info("roles updated", "email", user.Email, "roles", set.Roles())
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", user.Email, joinRoles(set.Roles()))
	return nil
}

func joinRoles(roles []types.Role) string {
	if len(roles) == 0 {
		return "(none)"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func init() {
	rootCmd.AddCommand(rolesCmd)
	rolesCmd.AddCommand(rolesGrantCmd, rolesRevokeCmd)

	rolesCmd.PersistentFlags().StringVar(&roleEmail, "email", "", "email of the user")
	rolesCmd.PersistentFlags().StringSliceVar(&roleNames, "role", nil, "role to grant or revoke (repeatable)")
	_ = rolesCmd.MarkPersistentFlagRequired("email")
}
