// Package aim3 embeds the AIM3 ranking engine in a Go program without the HTTP server.
//
// The client ranks stored artifacts by semantic similarity weighted with the
// searcher's context (trust, intent, environment, time), and retunes its
// serendipity strategy from recorded outcomes.
//
//	client, _ := aim3.New(ctx, aim3.WithValkey("localhost:6379", ""))
//	defer client.Close()
//
//	_, _ = client.Index(ctx, aim3.Artifact{
//	    Content: "tide pools at dawn",
//	    Context: aim3.Context{Environment: "creative", TrustPoints: 500},
//	})
//	res, _ := client.Search(ctx, aim3.SearchRequest{
//	    Query:   "quiet morning by the sea",
//	    Context: aim3.Context{Environment: "creative"},
//	    TopK:    5,
//	})
//
//	_ = client.RecordOutcome(ctx, aim3.Outcome{Gain: 0.02})
//	cycle, _ := client.Evolve(ctx)
//
// Without a store option the client runs fully in memory with the
// deterministic hash embedder, which is enough for tests and demos.
package aim3
