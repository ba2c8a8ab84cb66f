// Command batchctl is the operator CLI for the batch ingestion service.
package main

import "github.com/cyderes/employee-batch-service/cmd/batchctl/cmd"

func main() {
	cmd.Execute()
}
