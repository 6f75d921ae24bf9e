// @title Blood Test Report Analyser API
// @version 1.0
// @description Upload a blood test PDF, then poll for a markdown report with a medical summary, nutrition advice and a fitness plan.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import "blood-report-service/internal/cli"

func main() {
	cli.Execute()
}
