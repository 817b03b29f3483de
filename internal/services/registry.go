package services

import (
	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/keywordindex"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/learning"
	"github.com/emberfix/repaird/internal/retrieval"
	"github.com/emberfix/repaird/internal/session"
	"github.com/emberfix/repaird/internal/vectorstore"
)

// Registry provides access to all repaird services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Orchestrator() *session.Orchestrator
	Knowledge() *knowledge.Store
	Loader() *knowledge.Loader
	Retrieval() *retrieval.Engine
	Feedback() feedback.Store
	Learning() *learning.Scheduler
	VectorStore() vectorstore.Store
	KeywordIndex() *keywordindex.Index
}

// Options configures the registry with service instances.
type Options struct {
	Orchestrator *session.Orchestrator
	Knowledge    *knowledge.Store
	Loader       *knowledge.Loader
	Retrieval    *retrieval.Engine
	Feedback     feedback.Store
	Learning     *learning.Scheduler
	VectorStore  vectorstore.Store
	KeywordIndex *keywordindex.Index
}

// registry is the concrete implementation of Registry.
type registry struct {
	orchestrator *session.Orchestrator
	knowledge    *knowledge.Store
	loader       *knowledge.Loader
	retrieval    *retrieval.Engine
	feedback     feedback.Store
	learning     *learning.Scheduler
	vectorStore  vectorstore.Store
	keywordIndex *keywordindex.Index
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		orchestrator: opts.Orchestrator,
		knowledge:    opts.Knowledge,
		loader:       opts.Loader,
		retrieval:    opts.Retrieval,
		feedback:     opts.Feedback,
		learning:     opts.Learning,
		vectorStore:  opts.VectorStore,
		keywordIndex: opts.KeywordIndex,
	}
}

func (r *registry) Orchestrator() *session.Orchestrator { return r.orchestrator }
func (r *registry) Knowledge() *knowledge.Store         { return r.knowledge }
func (r *registry) Loader() *knowledge.Loader           { return r.loader }
func (r *registry) Retrieval() *retrieval.Engine        { return r.retrieval }
func (r *registry) Feedback() feedback.Store            { return r.feedback }
func (r *registry) Learning() *learning.Scheduler       { return r.learning }
func (r *registry) VectorStore() vectorstore.Store      { return r.vectorStore }
func (r *registry) KeywordIndex() *keywordindex.Index   { return r.keywordIndex }
