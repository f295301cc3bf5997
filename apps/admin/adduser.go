package main

import (
	"context"
	"fmt"

	"github.com/trezcool/psms/core/user"
)

// addUser creates a user of any role. The password policy applies.
func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Email:           email,
		Role:            role,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return cli.validationError(err)
	}

	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return cli.validationError(err)
	}
	fmt.Printf("%s %s <%s> created\n", usr.Role, usr.Name, usr.Email)
	return nil
}
