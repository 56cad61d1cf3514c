package triage

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/finsight-core-v1/server/internal/agent/llm"
	"github.com/finsight-core-v1/server/internal/agent/model"
)

type fakeGateway struct {
	reply string
	err   error
}

func (f *fakeGateway) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGateway) CompleteStructured(ctx context.Context, messages []*schema.Message, out any) error {
	content, err := f.Complete(ctx, messages)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(content, out)
}

var _ llm.Gateway = (*fakeGateway)(nil)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		err       error
		wantLabel model.ClassifyLabel
		wantMsg   bool
	}{
		{name: "finance", reply: `{"label":"finance"}`, wantLabel: model.LabelFinance},
		{name: "general conversation", reply: `{"label":"general_conversation"}`, wantLabel: model.LabelGeneralConv},
		{name: "not finance carries canned message", reply: `{"label":"not_finance"}`, wantLabel: model.LabelNotFinance, wantMsg: true},
		{name: "unknown label degrades to not finance", reply: `{"label":"weather"}`, wantLabel: model.LabelNotFinance, wantMsg: true},
		{name: "llm failure degrades to not finance", err: fmt.Errorf("provider down"), wantLabel: model.LabelNotFinance, wantMsg: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&fakeGateway{reply: tt.reply, err: tt.err})
			got := tr.Classify(context.Background(), "질문", nil)

			assert.Equal(t, tt.wantLabel, got.Label)
			if tt.wantMsg {
				assert.NotEmpty(t, got.Message)
			} else {
				assert.Empty(t, got.Message)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  model.AgentChoice
	}{
		{name: "financial analyst", reply: `{"agent":"financial_analyst"}`, want: model.AgentFinancialAnalyst},
		{name: "vector search", reply: `{"agent":"vector_search_agent"}`, want: model.AgentVectorSearch},
		{name: "none", reply: `{"agent":"none"}`, want: model.AgentNone},
		{name: "unknown agent maps to none", reply: `{"agent":"weather_agent"}`, want: model.AgentNone},
		{name: "llm failure maps to none", err: fmt.Errorf("provider down"), want: model.AgentNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(&fakeGateway{reply: tt.reply, err: tt.err})
			assert.Equal(t, tt.want, tr.Route(context.Background(), "질문", nil))
		})
	}
}

func TestRespondFallsBackOnError(t *testing.T) {
	tr := New(&fakeGateway{err: fmt.Errorf("provider down")})
	got := tr.Respond(context.Background(), "안녕하세요", nil)
	assert.NotEmpty(t, got)
}

func TestRewrite(t *testing.T) {
	t.Run("rewritten query", func(t *testing.T) {
		tr := New(&fakeGateway{reply: `{"needs_user_input":false,"rewritten_query":"삼성전자 주가 분석"}`})
		got := tr.Rewrite(context.Background(), "삼성 어때", model.FailureLowQuality, nil)

		assert.False(t, got.NeedsUserInput)
		assert.Equal(t, "삼성전자 주가 분석", got.RewrittenQuery)
	})

	t.Run("needs user input fills default message", func(t *testing.T) {
		tr := New(&fakeGateway{reply: `{"needs_user_input":true}`})
		got := tr.Rewrite(context.Background(), "?", model.FailureEmpty, nil)

		assert.True(t, got.NeedsUserInput)
		assert.NotEmpty(t, got.RequestForDetail)
	})

	t.Run("empty rewrite falls back to the original query", func(t *testing.T) {
		tr := New(&fakeGateway{reply: `{"needs_user_input":false,"rewritten_query":""}`})
		got := tr.Rewrite(context.Background(), "테슬라 분석", model.FailureLowQuality, nil)

		assert.Equal(t, "테슬라 분석", got.RewrittenQuery)
	})

	t.Run("llm failure asks the user for detail", func(t *testing.T) {
		tr := New(&fakeGateway{err: fmt.Errorf("provider down")})
		got := tr.Rewrite(context.Background(), "질문", model.FailureError, nil)

		assert.True(t, got.NeedsUserInput)
		assert.NotEmpty(t, got.RequestForDetail)
	})
}
