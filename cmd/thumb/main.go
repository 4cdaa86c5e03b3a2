package main

import (
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"

	"github.com/liondadev/quick-file-share/thumbnail"
)

func main() {
	format := flag.String("format", "png", "output format, png or gif")
	flag.Parse()
	if flag.NArg() != 2 {
		log.Fatalf("usage: %s [-format png|gif] <input image> <output file>", os.Args[0])
	}

	f, err := thumbnail.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer in.Close()

	thumb, err := thumbnail.Make(mime.TypeByExtension(filepath.Ext(flag.Arg(0))), in, f)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile(flag.Arg(1), thumb, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(thumb))
}
