// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// Prompt asks for an email on in and a password on the terminal fd without
// echoing it.
func Prompt(in io.Reader, out io.Writer, fd int) (Credentials, error) {
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Email: ")
	email, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || email == "") {
		return Credentials{}, fmt.Errorf("failed to read email: %w", err)
	}

	fmt.Fprint(out, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read password: %w", err)
	}

	c := Credentials{Email: strings.TrimSpace(email), Password: string(pw)}
	if c.Empty() {
		return Credentials{}, errors.New("email and password are required")
	}
	return c, nil
}
