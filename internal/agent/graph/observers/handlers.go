// Package observers wires Eino callback handlers for model and prompt
// lifecycle events into structured logs.
package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/finsight-core-v1/server/pkg/logger"
)

var olog = logx.Component("observer")

// NewAllCallbacks aggregates the model and prompt observers into one
// callbacks.Handler attached per graph invocation.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Handler()
}
