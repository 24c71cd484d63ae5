package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/objcbridge/snapshot"
)

const (
	bold  = "\x1b[1m"
	dim   = "\x1b[2m"
	reset = "\x1b[0m"
)

// printSnapshot writes a class-per-block listing of s.
func printSnapshot(w io.Writer, s *snapshot.Snapshot, color bool) {
	style := func(code, text string) string {
		if !color {
			return text
		}
		return code + text + reset
	}

	for i := range s.Classes {
		c := &s.Classes[i]
		header := c.Name
		if c.Superclass != "" {
			header += " : " + c.Superclass
		}
		fmt.Fprintf(w, "%s %s\n", style(bold, header), style(dim, fmt.Sprintf("(%d bytes)", c.InstanceSize)))

		if len(c.Protocols) > 0 {
			fmt.Fprintf(w, "  <%s>\n", strings.Join(c.Protocols, ", "))
		}
		for _, v := range c.Ivars {
			fmt.Fprintf(w, "  %-24s %s %s\n", v.Name, v.Encoding, style(dim, fmt.Sprintf("+%d", v.Offset)))
		}
		for _, p := range c.Properties {
			fmt.Fprintf(w, "  @property %-14s %s\n", p.Name, style(dim, p.Attributes))
		}
		for _, m := range c.ClassMethods {
			fmt.Fprintf(w, "  + %-22s %s\n", m.Selector, style(dim, m.Encoding))
		}
		for _, m := range c.InstanceMethods {
			fmt.Fprintf(w, "  - %-22s %s\n", m.Selector, style(dim, m.Encoding))
		}
		fmt.Fprintln(w)
	}
}
