// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// maxSecretFile bounds what ReadFromPath will load. Keys, identities,
// and label secrets are all well under a kilobyte.
const maxSecretFile = 64 * 1024

// ReadFromPath loads a secret from path, or from stdin when path is
// "-". A terminal on stdin is prompted without echo; piped stdin
// contributes its first line. Surrounding whitespace is dropped and an
// empty secret is an error. The caller closes the returned Buffer.
func ReadFromPath(path string) (*Buffer, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case path != "-":
		raw, err = readFile(path)
	case term.IsTerminal(int(os.Stdin.Fd())):
		raw, err = promptTerminal(int(os.Stdin.Fd()), os.Stderr)
	default:
		raw, err = readFirstLine(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	return fromRaw(raw)
}

// fromRaw trims raw into a Buffer and scrubs raw.
func fromRaw(raw []byte) (*Buffer, error) {
	defer Zero(raw)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("secret is empty")
	}
	return NewFromBytes(trimmed)
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	raw, err := io.ReadAll(io.LimitReader(file, maxSecretFile+1))
	if err != nil {
		Zero(raw)
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) > maxSecretFile {
		Zero(raw)
		return nil, fmt.Errorf("%s is larger than %d bytes and is not a secret", path, maxSecretFile)
	}
	return raw, nil
}

func promptTerminal(fd int, prompt io.Writer) ([]byte, error) {
	fmt.Fprint(prompt, "secret: ")
	entered, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, fmt.Errorf("reading terminal: %w", err)
	}
	return entered, nil
}

func readFirstLine(reader io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 512), maxSecretFile)
	if scanner.Scan() {
		// The scanner reuses its buffer; hand back a copy and scrub
		// the original.
		line := bytes.Clone(scanner.Bytes())
		Zero(scanner.Bytes())
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return nil, errors.New("stdin is empty")
}
