//go:build linux

package integration

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"namedq/internal/mq"
)

var _ = Describe("Named queues across processes", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(func() { cancel() })
	})

	It("delivers a message sent by another process", func() {
		name := uniqueQueue("xproc-send")

		q, err := mq.Open(name, 10, 1024)
		Expect(err).NotTo(HaveOccurred())
		defer q.Close()

		cmd := helper(ctx, "send", name, envPayload+"=from-helper", envPriority+"=7")
		Expect(cmd.Run()).To(Succeed())

		msg, err := q.TryReceiveMessage()
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).NotTo(BeNil())
		Expect(string(msg.Payload)).To(Equal("from-helper"))
		Expect(msg.Priority).To(BeEquivalentTo(7))
	})

	It("keeps the queue and its messages after the creating process exits", func() {
		name := uniqueQueue("xproc-survive")

		cmd := helper(ctx, "send", name, envPayload+"=left-behind", envCapacity+"=4", envSize+"=256")
		Expect(cmd.Run()).To(Succeed())

		// Attaching adopts the limits the helper created the queue with
		q, err := mq.Open(name, 10, 4096)
		Expect(err).NotTo(HaveOccurred())
		defer q.Close()
		Expect(q.Capacity()).To(Equal(4))
		Expect(q.MaxMessageSize()).To(Equal(256))

		payload, ok, err := q.TryReceive()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(payload)).To(Equal("left-behind"))
	})

	It("hands a message to a receiver blocked in another process", func() {
		name := uniqueQueue("xproc-receive")

		q, err := mq.Open(name, 10, 1024)
		Expect(err).NotTo(HaveOccurred())
		defer q.Close()

		var out bytes.Buffer
		cmd := helper(ctx, "receive", name)
		cmd.Stdout = &out
		Expect(cmd.Start()).To(Succeed())

		Expect(q.Send([]byte("wake up"), 1)).To(Succeed())
		Expect(cmd.Wait()).To(Succeed())
		Expect(out.String()).To(Equal("wake up"))
	})

	It("wakes a receiver blocked in another process when the queue is destroyed", func() {
		name := uniqueQueue("xproc-destroy")

		q, err := mq.Open(name, 10, 1024)
		Expect(err).NotTo(HaveOccurred())
		defer q.Close()

		cmd := helper(ctx, "receive", name)
		Expect(cmd.Start()).To(Succeed())

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		// Give the helper time to attach and block
		Consistently(done, 300*time.Millisecond).ShouldNot(Receive())

		Expect(q.Destroy()).To(Succeed())

		var waitErr error
		Eventually(done, 5*time.Second).Should(Receive(&waitErr))
		Expect(exitCode(waitErr)).To(Equal(helperRemoved))

		Expect(q.Destroy()).To(MatchError(mq.ErrNotFound))
	})

	It("lets a handle that outlived another process's Destroy see the removal", func() {
		name := uniqueQueue("xproc-stale")

		Expect(helper(ctx, "open", name).Run()).To(Succeed())

		q, err := mq.Open(name, 10, 1024)
		Expect(err).NotTo(HaveOccurred())
		defer q.Close()

		Expect(mq.Remove(name)).To(Succeed())

		_, _, err = q.TryReceive()
		Expect(err).To(MatchError(mq.ErrQueueRemoved))
		Expect(q.Send([]byte("x"), 0)).To(MatchError(mq.ErrQueueRemoved))
	})
})
