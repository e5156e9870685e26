package main

import (
	"errors"
	"fmt"
	"os"

	"loanchain/crypto"
)

func (c *cli) runGenerateKey(args []string) int {
	fs := c.flagSet("generate-key")
	out := fs.String("out", "", "Path of the keystore file to write")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable holding the keystore passphrase")
	passFile := fs.String("pass-file", "", "File whose first line is the keystore passphrase")
	light := fs.Bool("light-kdf", false, "Use light scrypt parameters (development keys only)")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		return c.fail(errors.New("--out is required"))
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return c.fail(fmt.Errorf("%s already exists; pass --force to overwrite", *out))
	}
	pass, err := newPassphraseSource(*passEnv).WithFile(*passFile).Get()
	if err != nil {
		return c.fail(err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return c.fail(err)
	}
	if *light {
		crypto.UseLightKDF()
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "%s\n", key.Address().Hex())
	return 0
}

func (c *cli) runAddress(args []string) int {
	if len(args) != 1 {
		return c.fail(errors.New("usage: loanctl address FILE"))
	}
	addr, err := crypto.KeystoreAddress(args[0])
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "%s\n", addr.Hex())
	return 0
}
