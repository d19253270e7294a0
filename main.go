package main

import "github.com/guimove/clusterfit-scaler/cmd"

func main() {
	cmd.Execute()
}
