package main

import "github.com/quinteroac/ComfyUI-ComfyAssistant-sub000/cmd"

func main() {
	cmd.Execute()
}
