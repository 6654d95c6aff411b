package tether_test

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"

	"github.com/aretw0/tether"
	tetherhttp "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/aretw0/tether/pkg/domain"
)

// ExampleClient drives a run against the scripted backend, answering one interrupt.
func ExampleClient() {
	srv, err := tetherhttp.NewServer(tetherhttp.Script{
		Segments: []tetherhttp.Segment{
			{
				Events:    []map[string]any{{"step": 1}},
				Interrupt: map[string]string{"region": "Select a region"},
			},
			{
				Events: []map[string]any{{"step": 2}},
				Result: map[string]any{"vmId": "vm-42"},
			},
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := tether.New(ts.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx, "Create Azure VM"); err != nil {
		log.Fatal(err)
	}

	snap, _ := client.Wait(ctx)
	fmt.Println(snap.State, snap.Interrupt)

	_ = client.SetInputField("region", "eastus")
	if err := client.Resume(ctx); err != nil {
		log.Fatal(err)
	}

	snap, _ = client.Wait(ctx, domain.StateCompleted, domain.StateFailed)
	fmt.Println(snap.State, snap.Result)

	// Output:
	// awaiting_input map[region:Select a region]
	// completed map[vmId:vm-42]
}
