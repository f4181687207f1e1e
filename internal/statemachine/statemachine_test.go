package statemachine_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rise-sh/rise/internal/statemachine"
)

func TestStatemachine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Statemachine Suite")
}

var _ = Describe("predicates", func() {
	DescribeTable("IsTerminal",
		func(s statemachine.Status, want bool) {
			Expect(statemachine.IsTerminal(s)).To(Equal(want))
		},
		Entry("Cancelled", statemachine.Cancelled, true),
		Entry("Stopped", statemachine.Stopped, true),
		Entry("Superseded", statemachine.Superseded, true),
		Entry("Failed", statemachine.Failed, true),
		Entry("Expired", statemachine.Expired, true),
		Entry("Healthy", statemachine.Healthy, false),
		Entry("Pending", statemachine.Pending, false),
		Entry("Terminating", statemachine.Terminating, false),
	)

	DescribeTable("IsActive",
		func(s statemachine.Status, want bool) {
			Expect(statemachine.IsActive(s)).To(Equal(want))
		},
		Entry("Healthy", statemachine.Healthy, true),
		Entry("Unhealthy", statemachine.Unhealthy, true),
		Entry("Deploying", statemachine.Deploying, false),
		Entry("Failed", statemachine.Failed, false),
	)

	DescribeTable("IsInProgress",
		func(s statemachine.Status, want bool) {
			Expect(statemachine.IsInProgress(s)).To(Equal(want))
		},
		Entry("Pending", statemachine.Pending, true),
		Entry("Deploying", statemachine.Deploying, true),
		Entry("Cancelling", statemachine.Cancelling, true),
		Entry("Terminating", statemachine.Terminating, true),
		Entry("Healthy", statemachine.Healthy, false),
		Entry("Failed", statemachine.Failed, false),
	)
})

var _ = Describe("CanTransition", func() {
	It("allows the full forward build/deploy chain", func() {
		chain := []statemachine.Status{
			statemachine.Pending, statemachine.Building, statemachine.Pushing,
			statemachine.Pushed, statemachine.Deploying, statemachine.Healthy,
		}
		for i := 0; i < len(chain)-1; i++ {
			Expect(statemachine.CanTransition(chain[i], chain[i+1])).To(BeTrue(),
				"%s -> %s should be legal", chain[i], chain[i+1])
		}
	})

	It("allows health oscillation both ways", func() {
		Expect(statemachine.CanTransition(statemachine.Healthy, statemachine.Unhealthy)).To(BeTrue())
		Expect(statemachine.CanTransition(statemachine.Unhealthy, statemachine.Healthy)).To(BeTrue())
	})

	It("allows cancellation only from pre-Pushed states", func() {
		for _, s := range []statemachine.Status{statemachine.Pending, statemachine.Building, statemachine.Pushing, statemachine.Pushed} {
			Expect(statemachine.CanTransition(s, statemachine.Cancelling)).To(BeTrue())
		}
		Expect(statemachine.CanTransition(statemachine.Deploying, statemachine.Cancelling)).To(BeFalse())
		Expect(statemachine.CanTransition(statemachine.Healthy, statemachine.Cancelling)).To(BeFalse())
	})

	It("allows termination from post-infrastructure or terminal-failure states", func() {
		for _, s := range []statemachine.Status{statemachine.Deploying, statemachine.Healthy, statemachine.Unhealthy, statemachine.Failed} {
			Expect(statemachine.CanTransition(s, statemachine.Terminating)).To(BeTrue())
		}
	})

	It("maps Terminating to exactly the five terminal reasons", func() {
		for _, s := range []statemachine.Status{statemachine.Superseded, statemachine.Stopped, statemachine.Failed, statemachine.Expired, statemachine.Cancelled} {
			Expect(statemachine.CanTransition(statemachine.Terminating, s)).To(BeTrue())
		}
	})

	It("allows Failed -> Pending retry but nothing else backward", func() {
		Expect(statemachine.CanTransition(statemachine.Failed, statemachine.Pending)).To(BeTrue())
		Expect(statemachine.CanTransition(statemachine.Stopped, statemachine.Pending)).To(BeFalse())
		Expect(statemachine.CanTransition(statemachine.Superseded, statemachine.Pending)).To(BeFalse())
	})

	It("rejects transitions out of terminal states", func() {
		for _, terminal := range []statemachine.Status{statemachine.Cancelled, statemachine.Stopped, statemachine.Superseded, statemachine.Expired} {
			for _, to := range []statemachine.Status{statemachine.Pending, statemachine.Healthy, statemachine.Terminating} {
				Expect(statemachine.CanTransition(terminal, to)).To(BeFalse(), "%s -> %s must be illegal", terminal, to)
			}
		}
	})

	It("rejects unknown source states", func() {
		Expect(statemachine.CanTransition(statemachine.Status("Bogus"), statemachine.Pending)).To(BeFalse())
	})
})

var _ = Describe("TerminalFor", func() {
	DescribeTable("maps reasons to terminal statuses",
		func(reason statemachine.TerminationReason, want statemachine.Status) {
			Expect(statemachine.TerminalFor(reason)).To(Equal(want))
		},
		Entry("Superseded", statemachine.ReasonSuperseded, statemachine.Superseded),
		Entry("UserStopped", statemachine.ReasonUserStopped, statemachine.Stopped),
		Entry("Failed", statemachine.ReasonFailed, statemachine.Failed),
		Entry("Expired", statemachine.ReasonExpired, statemachine.Expired),
		Entry("Cancelled", statemachine.ReasonCancelled, statemachine.Cancelled),
	)
})

var _ = Describe("CancellableFrom", func() {
	It("is true for every pre-Pushed state", func() {
		for _, s := range []statemachine.Status{statemachine.Pending, statemachine.Building, statemachine.Pushing, statemachine.Pushed} {
			Expect(statemachine.CancellableFrom(s)).To(BeTrue())
		}
	})

	It("is false once infrastructure may exist", func() {
		for _, s := range []statemachine.Status{statemachine.Deploying, statemachine.Healthy, statemachine.Unhealthy} {
			Expect(statemachine.CancellableFrom(s)).To(BeFalse())
		}
	})
})
