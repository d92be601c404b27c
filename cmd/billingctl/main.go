package main

import (
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/backoffice-billing/cmd/billingctl/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
