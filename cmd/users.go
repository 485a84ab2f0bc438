package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/harmonymaker/internal/auth"
	"github.com/desertthunder/harmonymaker/internal/formatter"
	"github.com/desertthunder/harmonymaker/internal/repositories"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/urfave/cli/v3"
)

// UsersList prints active users.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := repositories.NewUserRepository(db).List(ctx, map[string]any{"email": cmd.String("email")})
	if err != nil {
		return err
	}

	if len(users) == 0 && format == formatter.FormatTable {
		r.writePlain("%s\n", r.palette.Help("No users found"))
		return nil
	}

	data, err := formatter.Render(formatter.UsersSheet(users, r.now()), format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// UsersCreate registers a password account.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	service := auth.NewService(repositories.NewUserRepository(db), nil, r.logger)
	user, err := service.Register(ctx, cmd.String("username"), cmd.String("email"), cmd.String("password"))
	if err != nil {
		r.writePlain("%s\n", r.palette.Status("create user", err))
		return err
	}

	r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("created user %s (%s)", user.Username(), user.ID()), nil))
	return nil
}

// UsersDelete soft-deletes the user given as the first argument.
func (r *Runner) UsersDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrMissingArgument)
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewUserRepository(db).Delete(ctx, id); err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.Status("deactivated user "+id, nil))
	return nil
}
