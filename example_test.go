package rabbit_test

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/codec/json"
	"github.com/go-thor/rabbit/format"
	"github.com/go-thor/rabbit/middleware/logging"
	"github.com/go-thor/rabbit/middleware/retry"
	"github.com/go-thor/rabbit/middleware/timeout"
	httptransport "github.com/go-thor/rabbit/transport/http"
)

type HelloRequest struct {
	Name string `json:"name"`
}

type HelloReply struct {
	Message string `json:"message"`
}

func Example() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /greeters/{greeter}/hello", func(w http.ResponseWriter, r *http.Request) {
		var req HelloRequest
		if err := stdjson.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"message":"Hello %s from %s (%s)"}`, req.Name, r.PathValue("greeter"), r.URL.Query().Get("lang"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := rabbit.NewClient(httptransport.New(),
		rabbit.WithLogger(logger),
		rabbit.WithClientCodec(json.New().Codec()),
		rabbit.WithFormatter(format.NewRegistry()),
		rabbit.WithInterceptors(
			logging.New(logger),
			timeout.WithTimeout(3*time.Second),
			retry.New(retry.WithMaxRetries(2), retry.WithInterval(100*time.Millisecond, time.Second)),
		),
	)
	defer client.Close()

	err := client.Register(rabbit.MustMethod("Greeter.SayHello", "POST", srv.URL+"/greeters/{greeter}/hello",
		rabbit.PathParam[string]("greeter"),
		rabbit.QueryParam[string]("lang"),
		rabbit.BodyParam[*HelloRequest]("request"),
		rabbit.Returns[HelloReply](),
	))
	if err != nil {
		fmt.Println(err)
		return
	}

	reply, err := rabbit.InvokeAs[HelloReply](context.Background(), client, "Greeter.SayHello",
		"thor", "en", &HelloRequest{Name: "rabbit"})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(reply.Message)
	// Output: Hello rabbit from thor (en)
}
