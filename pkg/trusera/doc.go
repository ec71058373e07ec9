// Package trusera is the Go client for the Trusera agent activity
// API. Producers record events describing what an agent did (tool
// calls, LLM invocations, data access); the client buffers them in
// memory and a background loop ships them in batches, with bounded
// retries and intentional loss under sustained failure. Tracking never
// blocks on I/O and never surfaces an error into producer code.
//
// Usage:
//
//	client, err := trusera.New(trusera.WithAPIKey("tsk_..."))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	if _, err := client.RegisterAgent(ctx, "my-agent", "langchain", nil); err != nil {
//	    log.Fatal(err)
//	}
//	client.Track(trusera.NewEvent(trusera.ToolCall, "search",
//	    trusera.WithPayload(map[string]any{"query": "weather"})))
//
// Credentials and endpoint may also come from the environment
// (TRUSERA_API_KEY, TRUSERA_API_URL); explicit options win.
package trusera
