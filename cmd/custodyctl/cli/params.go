// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagBinder is implemented by parameter groups that register their
// own flags instead of being reflected field by field.
type FlagBinder interface {
	AddFlags(flagSet *pflag.FlagSet)
}

// FlagsFromParams returns a FlagSet bound to params, a pointer to a
// struct. Invalid params panic: they are a bug in the command, not bad
// input from the user.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers one flag per tagged field of params.
//
// A field is bound when it carries flag:"long" or flag:"long,s".
// desc:"..." is the help text and default:"..." the default, written
// the way a user would type it on the command line. Field types are
// string, bool, int, uint64, time.Duration, []string, or anything
// implementing encoding.TextUnmarshaler (token ids, addresses).
// Embedded structs are flattened; struct fields implementing
// [FlagBinder] bind themselves.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	pointer := reflect.ValueOf(params)
	if pointer.Kind() != reflect.Pointer || pointer.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return walkParams(pointer.Elem(), flagSet)
}

func walkParams(group reflect.Value, flagSet *pflag.FlagSet) error {
	for _, field := range reflect.VisibleFields(group.Type()) {
		if len(field.Index) != 1 {
			// Promoted fields are reached through their embedding
			// struct below.
			continue
		}
		value := group.FieldByIndex(field.Index)

		if field.Type.Kind() == reflect.Struct {
			if field.IsExported() {
				if binder, ok := value.Addr().Interface().(FlagBinder); ok {
					binder.AddFlags(flagSet)
					continue
				}
			}
			if field.Anonymous {
				if err := walkParams(value, flagSet); err != nil {
					return fmt.Errorf("%s: %w", field.Name, err)
				}
				continue
			}
		}

		tag, tagged := field.Tag.Lookup("flag")
		if !tagged || tag == "" {
			continue
		}
		if !field.IsExported() {
			return fmt.Errorf("%s: flag fields must be exported", field.Name)
		}
		binding := flagSpec{usage: field.Tag.Get("desc"), initial: field.Tag.Get("default")}
		binding.name, binding.shorthand, _ = strings.Cut(tag, ",")
		if err := binding.bind(value.Addr().Interface(), flagSet); err != nil {
			return fmt.Errorf("%s: %w", field.Name, err)
		}
	}
	return nil
}

type flagSpec struct {
	name, shorthand string
	usage           string
	initial         string
}

func (f flagSpec) bind(target any, flagSet *pflag.FlagSet) error {
	var err error
	switch target := target.(type) {
	case *string:
		flagSet.StringVarP(target, f.name, f.shorthand, f.initial, f.usage)
	case *bool:
		var initial bool
		if initial, err = defaultOf(f.initial, strconv.ParseBool); err == nil {
			flagSet.BoolVarP(target, f.name, f.shorthand, initial, f.usage)
		}
	case *int:
		var initial int
		if initial, err = defaultOf(f.initial, strconv.Atoi); err == nil {
			flagSet.IntVarP(target, f.name, f.shorthand, initial, f.usage)
		}
	case *uint64:
		var initial uint64
		if initial, err = defaultOf(f.initial, parseUint64); err == nil {
			flagSet.Uint64VarP(target, f.name, f.shorthand, initial, f.usage)
		}
	case *time.Duration:
		var initial time.Duration
		if initial, err = defaultOf(f.initial, time.ParseDuration); err == nil {
			flagSet.DurationVarP(target, f.name, f.shorthand, initial, f.usage)
		}
	case *[]string:
		var initial []string
		if f.initial != "" {
			initial = strings.Split(f.initial, ",")
		}
		flagSet.StringSliceVarP(target, f.name, f.shorthand, initial, f.usage)
	case encoding.TextUnmarshaler:
		value := &textFlag{target: target}
		if f.initial != "" {
			err = value.Set(f.initial)
		}
		if err == nil {
			flagSet.VarP(value, f.name, f.shorthand, f.usage)
		}
	default:
		return fmt.Errorf("--%s: unsupported field type %T", f.name, target)
	}
	if err != nil {
		return fmt.Errorf("--%s: default %q: %w", f.name, f.initial, err)
	}
	return nil
}

func defaultOf[T any](text string, parse func(string) (T, error)) (T, error) {
	var zero T
	if text == "" {
		return zero, nil
	}
	return parse(text)
}

func parseUint64(text string) (uint64, error) { return strconv.ParseUint(text, 10, 64) }

// textFlag adapts a TextUnmarshaler to pflag.Value. Parse errors from
// the type surface as pflag's "invalid argument" errors.
type textFlag struct {
	target encoding.TextUnmarshaler
	text   string
}

func (f *textFlag) Set(text string) error {
	if err := f.target.UnmarshalText([]byte(text)); err != nil {
		return err
	}
	f.text = text
	return nil
}

func (f *textFlag) String() string { return f.text }

func (f *textFlag) Type() string { return "value" }
