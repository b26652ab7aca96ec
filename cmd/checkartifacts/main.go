// checkartifacts verifies that a pipeline/model artifact pair loads and
// produces a finite prediction for a reference record.
package main

import (
	"flag"
	"fmt"
	"os"

	"homeval/ml"
)

func main() {
	pipelinePath := flag.String("pipeline", "./artifacts/pipeline.json", "path to the pipeline artifact")
	modelPath := flag.String("model", "./artifacts/model.json", "path to the model artifact")
	flag.Parse()

	artifacts, err := ml.LoadArtifacts(*pipelinePath, *modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact check failed: %v\n", err)
		os.Exit(1)
	}
	defer artifacts.Close()

	status := artifacts.Status()
	fmt.Printf("pipeline: %s (%d features)\n", *pipelinePath, status.FeatureCount)
	fmt.Printf("model:    %s (%d trees)\n", *modelPath, status.TreeCount)

	service, err := ml.NewService(artifacts, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "artifact check failed: %v\n", err)
		os.Exit(1)
	}

	record := ml.HousingRecord{
		Longitude:        -118.0,
		Latitude:         34.0,
		HousingMedianAge: 20,
		TotalRooms:       2000,
		TotalBedrooms:    500,
		Population:       1000,
		Households:       400,
		MedianIncome:     3.5,
		OceanProximity:   ml.LessThanHourOcean,
	}
	prediction, err := service.Evaluate(record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reference prediction failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("reference prediction: %.0f\n", prediction.Value)
	fmt.Printf("  price per room:    %.2f\n", prediction.Metrics.PricePerRoom)
	fmt.Printf("  price per bedroom: %.2f\n", prediction.Metrics.PricePerBedroom)
	fmt.Printf("  price to income:   %.2f\n", prediction.Metrics.PriceToIncome)
	fmt.Printf("  price per person:  %.2f\n", prediction.Metrics.PricePerPerson)
	fmt.Printf("  density:           %.2f\n", prediction.Metrics.PopulationDensity)
}
