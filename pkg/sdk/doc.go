// Package querent is the Go client for the querent retrieval service.
//
// A Client talks to a running querent instance over HTTP:
//
//	client, err := querent.New("http://localhost:8080",
//		querent.WithAPIKey(os.Getenv("QUERENT_API_KEY")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	results, err := client.Search(ctx, querent.SearchRequest{
//		Query:      "refund policy",
//		Scope:      "kb",
//		BusinessID: "42",
//		UserID:     "u-7",
//	})
//
// Deep search streams results as they are produced; read them with
// DeepSearchStream.Next until io.EOF:
//
//	stream, err := client.DeepSearch(ctx, req)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for {
//		r, err := stream.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		handle(r)
//	}
package querent
