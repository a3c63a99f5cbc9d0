package main

import (
	"fmt"
	"io"
	"os"

	"custody/db"
	"custody/keys"

	"github.com/spf13/cobra"
)

type inspectFlags struct {
	prefix   string
	only     string
	keysOnly bool
}

func registerInspect(parent *cobra.Command) {
	f := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <db-path>",
		Short: "Dump raw vault keys from a stopped node (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := runInspect(args[0], f, os.Stdout)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%d keys\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.prefix, "prefix", "v1_", "key prefix to dump")
	cmd.Flags().StringVar(&f.only, "only", "", "restrict to one data set: events, whitelist, state")
	cmd.Flags().BoolVar(&f.keysOnly, "keys-only", false, "print keys without values")
	parent.AddCommand(cmd)
}

// runInspect 按前缀导出 key；表格输出里的 key 去掉版本前缀
func runInspect(path string, f *inspectFlags, out io.Writer) (int, error) {
	prefix := f.prefix
	keep := func(string) bool { return true }
	switch f.only {
	case "":
	case "events":
		prefix = keys.KeyEventPrefix()
	case "whitelist":
		prefix = keys.KeyWhitelistPrefix()
	case "state":
		keep = keys.IsStatefulKey
	default:
		return 0, fmt.Errorf("unknown data set %q", f.only)
	}

	m, err := db.NewReadOnlyManager(path)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	n := 0
	err = m.Dump(prefix, func(key string, value []byte) error {
		if !keep(key) {
			return nil
		}
		n++
		if f.keysOnly {
			_, err := fmt.Fprintln(out, key)
			return err
		}
		_, err := fmt.Fprintf(out, "%s\t%s\t%x\n", keys.Category(key), keys.StripVersion(key), value)
		return err
	})
	return n, err
}
