package main

import (
	"fmt"
	"os"

	"github.com/embedos/fat32"
	"github.com/embedos/fat32/blockdev"
)

func main() {
	argsWithoutProg := os.Args[1:]
	if len(argsWithoutProg) <= 0 {
		fmt.Println("Please provide a filename.")
		os.Exit(1)
	}

	device, err := blockdev.OpenFile(argsWithoutProg[0], os.O_RDONLY, 0)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer device.Close()

	fs, err := fat32.New(device)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println(fs.Name())
}
