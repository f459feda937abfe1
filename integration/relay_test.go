//go:build linux

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"namedq/internal/api"
	"namedq/internal/config"
	"namedq/internal/domain"
	"namedq/internal/queue"
	memqueue "namedq/internal/queue/memory"
	"namedq/internal/relay"
	storemem "namedq/internal/store/memory"
)

var _ = Describe("Relay in memory mode", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		cfg     *config.Config
		bus     *memqueue.Bus
		state   *storemem.StateStore
		archive *storemem.ArchiveRepository
		service *relay.Service
		server  *api.Server

		feedbackQueue string
		configQueue   string
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
		DeferCleanup(func() { cancel() })

		feedbackQueue = uniqueQueue("relay-feedback")
		configQueue = uniqueQueue("relay-config")

		var err error
		cfg, err = config.Parse([]byte(fmt.Sprintf(`
storage:
  mode: memory
queue:
  poll_interval: 20ms
routes:
  - name: feedback
    direction: outbound
    queue: {name: %s, capacity: 10, max_message_size: 1024}
  - name: config
    direction: inbound
    queue: {name: %s, capacity: 10, max_message_size: 1024}
    priority: 1
`, feedbackQueue, configQueue)))
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, &slog.HandlerOptions{Level: slog.LevelWarn}))
		bus = memqueue.NewBus(100)
		state = storemem.NewStateStore()
		archive = storemem.NewArchiveRepository(100)

		service = relay.NewService(cfg.Routes, cfg.Queue, bus, state, archive, logger)
		Expect(service.Open()).To(Succeed())

		server = api.NewServer(api.ServerDeps{
			Config:       &cfg.Server,
			Logger:       logger,
			QueueHandler: api.NewQueueHandler(service, logger),
			RouteHandler: api.NewRouteHandler(service, state, archive, logger),
		})

		runCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer GinkgoRecover()
			Expect(service.Start(runCtx)).To(Succeed())
		}()
		DeferCleanup(func() {
			stop()
			Eventually(done, 5*time.Second).Should(BeClosed())
			Expect(service.Stop()).To(Succeed())
			Expect(bus.Close()).To(Succeed())
		})
	})

	getJSON := func(path string, into any) int {
		resp, err := server.App().Test(httptest.NewRequest("GET", path, nil), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())

		var env struct {
			Data json.RawMessage `json:"data"`
		}
		Expect(json.Unmarshal(body, &env)).To(Succeed())
		if into != nil && len(env.Data) > 0 {
			Expect(json.Unmarshal(env.Data, into)).To(Succeed())
		}
		return resp.StatusCode
	}

	It("publishes what another process sends to an outbound queue", func() {
		received := make(chan *queue.Message, 10)
		go func() {
			_ = bus.Topic("namedq.feedback").Start(ctx, func(_ context.Context, msg *queue.Message) error {
				received <- msg
				return nil
			})
		}()

		cmd := helper(ctx, "send", feedbackQueue, envPayload+"=status ok", envPriority+"=6")
		Expect(cmd.Run()).To(Succeed())

		var msg *queue.Message
		Eventually(received, 5*time.Second).Should(Receive(&msg))
		Expect(string(msg.Value)).To(Equal("status ok"))
		Expect(msg.Headers).To(HaveKeyWithValue(domain.HeaderPriority, "6"))
		Expect(msg.Headers).To(HaveKeyWithValue(domain.HeaderQueue, feedbackQueue))

		Eventually(func() int64 {
			var st domain.RouteState
			if getJSON("/v1/routes/feedback/state", &st) != 200 {
				return -1
			}
			return st.Forwarded
		}, 5*time.Second, 50*time.Millisecond).Should(BeEquivalentTo(1))

		var archived []domain.RelayedMessage
		Expect(getJSON("/v1/routes/feedback/archive", &archived)).To(Equal(200))
		Expect(archived).To(HaveLen(1))
		Expect(archived[0].ID).To(Equal(msg.Headers[domain.HeaderID]))
	})

	It("delivers bus messages to a process blocked on an inbound queue", func() {
		var out bytes.Buffer
		cmd := helper(ctx, "receive", configQueue)
		cmd.Stdout = &out
		Expect(cmd.Start()).To(Succeed())

		err := bus.Producer("namedq.config").Publish(ctx, &queue.Message{
			Value:   []byte("reload"),
			Headers: map[string]string{domain.HeaderPriority: "4"},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(cmd.Wait()).To(Succeed())
		Expect(out.String()).To(Equal("reload"))

		var status relay.QueueStatus
		Expect(getJSON("/v1/queues/"+configQueue, &status)).To(Equal(200))
		Expect(status.Route).To(Equal("config"))
		Expect(status.Attributes.Capacity).To(Equal(10))
		Expect(status.Attributes.Current).To(Equal(0))
	})
})
