// Command monsoondump inspects a tsdata v2 file: its header flags and time
// range, and the number of distinct timestamps and group paths it holds.
// Usage: monsoondump <path>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nahratzah/monsoon/tsdata"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <tsdata-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	path := flag.Arg(0)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	tf, err := tsdata.Open(f)
	if err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	defer tf.Close()

	fmt.Printf("file:        %s\n", path)
	fmt.Printf("flags:       %s\n", tf.Flags())
	fmt.Printf("time range:  [%d, %d]\n", tf.First(), tf.Last())

	series, err := tf.ReadAll()
	if err != nil {
		log.Fatalf("%s: read_all: %v", path, err)
	}

	groups := make(map[string]struct{})
	for _, ts := range series {
		for _, v := range ts.Values {
			groups[fmt.Sprint(v.Group.Path)] = struct{}{}
		}
	}

	fmt.Printf("timestamps:  %d\n", len(series))
	fmt.Printf("groups:      %d\n", len(groups))
}
