package authz

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rise-sh/rise/internal/store"
)

var _ = Describe("Evaluator", func() {
	var (
		evaluator *Evaluator
		ctx       context.Context
	)

	BeforeEach(func() {
		evaluator = NewEvaluator(logr.Discard())
		ctx = context.Background()
	})

	Describe("Allowed", func() {
		It("allows an admin regardless of ownership", func() {
			in := Input{UserID: "u1", IsAdmin: true, ProjectOwnerUser: "someone-else"}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("allows the direct owner of a user-owned project", func() {
			in := Input{UserID: "u1", ProjectOwnerUser: "u1"}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("denies a non-owner, non-admin user", func() {
			in := Input{UserID: "u1", ProjectOwnerUser: "u2"}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("allows a member of the project's owning team", func() {
			in := Input{UserID: "u1", ProjectOwnerTeam: "team-a", UserTeamIDs: []string{"team-b", "team-a"}}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("denies a user whose teams don't include the owning team", func() {
			in := Input{UserID: "u1", ProjectOwnerTeam: "team-a", UserTeamIDs: []string{"team-b"}}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("denies when a project has neither owner set", func() {
			in := Input{UserID: "u1"}
			allowed, err := evaluator.Allowed(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})
	})

	Describe("ForProject", func() {
		It("maps a user-owned project's owner into the input", func() {
			owner := uuid.New()
			user := uuid.New()
			project := &store.Project{ID: uuid.New(), OwnerUserID: &owner}

			in := ForProject(project, user, false, nil)
			Expect(in.UserID).To(Equal(user.String()))
			Expect(in.ProjectOwnerUser).To(Equal(owner.String()))
			Expect(in.ProjectOwnerTeam).To(BeEmpty())
		})

		It("maps a team-owned project's owner and the user's teams", func() {
			team := uuid.New()
			user := uuid.New()
			userTeam := uuid.New()
			project := &store.Project{ID: uuid.New(), OwnerTeamID: &team}

			in := ForProject(project, user, false, []uuid.UUID{userTeam})
			Expect(in.ProjectOwnerTeam).To(Equal(team.String()))
			Expect(in.UserTeamIDs).To(ConsistOf(userTeam.String()))
		})
	})
})
