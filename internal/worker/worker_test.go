package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/threadloom/threadloom/internal/extraction"
	"github.com/threadloom/threadloom/internal/model"
)

type fixedConsent struct{ authors map[string]struct{} }

func (f fixedConsent) ConsentedAuthors(ctx context.Context, sourceScope string) (map[string]struct{}, error) {
	return f.authors, nil
}

type singleThreadDisentangler struct{}

func (singleThreadDisentangler) Cluster(ctx context.Context, messages []model.RawMessage) ([]model.Thread, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	return []model.Thread{{Messages: messages}}, nil
}

type fixedClassifier struct{ label string }

func (f fixedClassifier) Classify(ctx context.Context, thread []model.RawMessage) (string, error) {
	return f.label, nil
}

type fixedEvaluator struct{ json string }

func (f fixedEvaluator) Evaluate(ctx context.Context, thread []model.RawMessage, articleType model.ArticleType) (string, error) {
	return f.json, nil
}

type fixedCompiler struct{ json string }

func (f fixedCompiler) Compile(ctx context.Context, thread []model.RawMessage, articleType model.ArticleType) (string, error) {
	return f.json, nil
}

type capturingPersister struct {
	calls int
	err   error
}

func (c *capturingPersister) Persist(ctx context.Context, article model.CompiledArticle, sourceType, channelExternalID string, qualityScore float64, messages []model.RawMessage) error {
	c.calls++
	return c.err
}

const passingArticleJSON = `{"article_type":"TROUBLESHOOTING","symptom":"nil pointer","diagnosis":"missing guard before dereferencing the request body on the hot path during client disconnects","solution":"add a nil check before use and return 400 when absent, then add a regression test so this class of bug cannot resurface silently","code_snippet":"if req.Body == nil { return errors.New(\"missing body\") }","language":"go","tags":["nil","handler","go","bugfix","regression"],"confidence":0.9,"thread_summary":"Fixed nil pointer dereference"}`

func sampleMessages() []model.RawMessage {
	t0 := time.Now()
	return []model.RawMessage{
		{MessageID: "1", AuthorHandle: "alice", Content: "crash: nil pointer, my email is a@b.com", Timestamp: t0, HasCode: true},
		{MessageID: "2", AuthorHandle: "bob", Content: "add a nil guard before use", Timestamp: t0.Add(time.Minute), HasCode: true, ReplyTo: "1"},
	}
}

func TestProcess_PersistsOnQualityPass(t *testing.T) {
	persister := &capturingPersister{}
	p := &Processor{
		Runtime: &extraction.Runtime{
			Disentangler: singleThreadDisentangler{},
			Classifier:   fixedClassifier{label: "TROUBLESHOOTING"},
			Evaluator:    fixedEvaluator{json: `{"has_solution":true,"has_code":true,"is_resolved":true,"reasoning":"fixed"}`},
			Compiler:     fixedCompiler{json: passingArticleJSON},
		},
		Consent:   fixedConsent{authors: map[string]struct{}{"alice": {}, "bob": {}}},
		Persister: persister,
	}

	err := p.Process(context.Background(), Batch{SourceType: "discord", ServerScope: "srv", ChannelScope: "ch", Messages: sampleMessages()})
	if err != nil {
		t.Fatal(err)
	}
	if persister.calls != 1 {
		t.Fatalf("expected exactly one persist call, got %d", persister.calls)
	}
}

func TestProcess_ConsentFilterDropsAllSkipsRuntime(t *testing.T) {
	persister := &capturingPersister{}
	p := &Processor{
		Runtime: &extraction.Runtime{
			Disentangler: singleThreadDisentangler{},
			Classifier:   fixedClassifier{label: "NOISE"},
		},
		Consent:   fixedConsent{authors: map[string]struct{}{}},
		Persister: persister,
	}

	err := p.Process(context.Background(), Batch{SourceType: "discord", ServerScope: "srv", ChannelScope: "ch", Messages: sampleMessages()})
	if err != nil {
		t.Fatal(err)
	}
	if persister.calls != 0 {
		t.Fatal("expected no persistence once consent drops every message")
	}
}

func TestProcess_PublicSourceSkipsConsent(t *testing.T) {
	persister := &capturingPersister{}
	p := &Processor{
		Runtime: &extraction.Runtime{
			Disentangler: singleThreadDisentangler{},
			Classifier:   fixedClassifier{label: "TROUBLESHOOTING"},
			Evaluator:    fixedEvaluator{json: `{"has_solution":true,"has_code":true,"is_resolved":true,"reasoning":"fixed"}`},
			Compiler:     fixedCompiler{json: passingArticleJSON},
		},
		Consent:   fixedConsent{authors: map[string]struct{}{}}, // would drop everything if consulted
		Persister: persister,
	}

	err := p.Process(context.Background(), Batch{SourceType: "github", ServerScope: "srv", ChannelScope: "ch", Messages: sampleMessages()})
	if err != nil {
		t.Fatal(err)
	}
	if persister.calls != 1 {
		t.Fatal("expected public-source batch to bypass consent and persist")
	}
}

func TestProcess_NoiseNeverPersists(t *testing.T) {
	persister := &capturingPersister{}
	p := &Processor{
		Runtime: &extraction.Runtime{
			Disentangler: singleThreadDisentangler{},
			Classifier:   fixedClassifier{label: "NOISE"},
		},
		Consent:   fixedConsent{authors: map[string]struct{}{"alice": {}, "bob": {}}},
		Persister: persister,
	}

	err := p.Process(context.Background(), Batch{SourceType: "discord", ServerScope: "srv", ChannelScope: "ch", Messages: sampleMessages()})
	if err != nil {
		t.Fatal(err)
	}
	if persister.calls != 0 {
		t.Fatal("noise should never reach persistence")
	}
}

func TestProcess_PersistFailurePropagates(t *testing.T) {
	persister := &capturingPersister{err: errors.New("db unavailable")}
	p := &Processor{
		Runtime: &extraction.Runtime{
			Disentangler: singleThreadDisentangler{},
			Classifier:   fixedClassifier{label: "TROUBLESHOOTING"},
			Evaluator:    fixedEvaluator{json: `{"has_solution":true,"has_code":true,"is_resolved":true,"reasoning":"fixed"}`},
			Compiler:     fixedCompiler{json: passingArticleJSON},
		},
		Consent:   fixedConsent{authors: map[string]struct{}{"alice": {}, "bob": {}}},
		Persister: persister,
	}

	err := p.Process(context.Background(), Batch{SourceType: "discord", ServerScope: "srv", ChannelScope: "ch", Messages: sampleMessages()})
	if err == nil {
		t.Fatal("expected a non-transient persist failure to surface")
	}
}
