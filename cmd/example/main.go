// Command example wires a small System with a logging actor
// subscribed to every system event, an echo actor reachable over a
// websocket, and an HTTP server exposing it — the runtime's
// equivalent of the teacher's main.go wiring, generalized from one
// game server to any actor behind a transport.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/lguibr/bollywood"
)

const defaultPort = "8080"

func main() {
	cfg := bollywood.DefaultSystemConfig()
	sys := bollywood.NewSystem(cfg)

	sys.Interceptors().Register(bollywood.NewValidationInterceptor(bollywood.ValidationPolicy{
		Mode: bollywood.FilterOnFail,
	}))
	sys.Interceptors().Register(bollywood.NewRetryInterceptor(bollywood.RetryWithCircuitBreakerPolicy("example")))

	if err := sys.Start(); err != nil {
		panic(fmt.Sprintf("failed to start system: %v", err))
	}
	fmt.Println("bollywood system started")

	echoPID, err := sys.Spawn(bollywood.NewProps(newEchoBehavior).WithID("example.echo"), nil)
	if err != nil {
		panic(fmt.Sprintf("failed to spawn echo actor: %v", err))
	}
	fmt.Printf("echo actor spawned at %s\n", echoPID)

	loggerPID, err := sys.Spawn(bollywood.NewProps(newSystemEventLogger), nil)
	if err != nil {
		panic(fmt.Sprintf("failed to spawn system event logger: %v", err))
	}
	if err := sys.SubscribeToSystemEvents("system.*", loggerPID); err != nil {
		fmt.Println("warning: failed to subscribe logger to system events:", err)
	}

	transport := bollywood.NewWebSocketTransport(sys, bollywood.JSONCodec(), nil)

	http.HandleFunc("/health-check/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	http.Handle("/echo", transport.Handler(bollywood.NewAddress(echoPID.String())))

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
		fmt.Printf("PORT not set, defaulting to %s\n", port)
	}

	listenAddr := ":" + port
	fmt.Printf("listening on %s\n", listenAddr)

	if err := http.ListenAndServe(listenAddr, nil); err != nil {
		fmt.Println("server stopped:", err)
	}

	fmt.Println("shutting down system")
	if err := sys.Stop(5 * time.Second); err != nil {
		fmt.Println("error during shutdown:", err)
	}
	fmt.Println("shutdown complete")
}

// echoBehavior replies to every message with the same payload,
// tagged as an ECHO response — useful for exercising the transport
// and ask/reply paths end to end.
type echoBehavior struct{}

func newEchoBehavior() bollywood.Behavior { return echoBehavior{} }

func (echoBehavior) OnStart(self *bollywood.PID) (any, error) { return nil, nil }

func (echoBehavior) OnMessage(mc bollywood.MessageContext) (bollywood.Plan, error) {
	return mc.Reply(mc.Message.Payload, "ECHO"), nil
}

func (echoBehavior) OnStop(any) error { return nil }

// systemEventLogger prints every system.* event it receives, the
// runtime's equivalent of the teacher's fmt.Printf lifecycle logging.
type systemEventLogger struct{}

func newSystemEventLogger() bollywood.Behavior { return systemEventLogger{} }

func (systemEventLogger) OnStart(self *bollywood.PID) (any, error) { return nil, nil }

func (systemEventLogger) OnMessage(mc bollywood.MessageContext) (bollywood.Plan, error) {
	if mc.Message.Type == bollywood.MsgTopicEvent {
		payload := mc.Message.Payload.(bollywood.TopicEventPayload)
		fmt.Printf("[system event] %s: %+v\n", payload.Topic, payload.Event.Payload)
	}
	return bollywood.Nothing(), nil
}

func (systemEventLogger) OnStop(any) error { return nil }
