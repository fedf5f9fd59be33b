package egress

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
)

// Pipeline runs a single delivery attempt: render_plan, encode, send_payload.
// Every attempt restarts from rendering so a retried job never reuses a stale
// plan.
type Pipeline struct {
	runtime pack.Runtime
	log     logging.ServiceLogger
}

// NewPipeline builds a pipeline over the given pack runtime.
func NewPipeline(runtime pack.Runtime, log logging.ServiceLogger) *Pipeline {
	return &Pipeline{runtime: runtime, log: log}
}

// Attempt drives one full pass for the job, mutating its Stage as it goes.
// A nil return means the payload was delivered.
func (p *Pipeline) Attempt(ctx context.Context, job *Job) *pack.OpError {
	message, err := messageValue(&job.Message)
	if err != nil {
		return &pack.OpError{Code: "encode-message", Message: err.Error()}
	}

	job.setStage(StageRendering)
	plan, opErr := p.renderPlan(ctx, job, message)
	if opErr != nil {
		return opErr
	}
	job.Plan = plan

	job.setStage(StageEncoding)
	payload := p.encodePayload(ctx, job, message, plan)

	job.setStage(StageSending)
	if opErr := p.sendPayload(ctx, job, payload); opErr != nil {
		return opErr
	}

	job.setStage(StageDelivered)
	return nil
}

func (p *Pipeline) renderPlan(ctx context.Context, job *Job, message any) (any, *pack.OpError) {
	input, err := jsoncodec.Marshal(envelope.RenderPlanInV1{V: 1, Message: message})
	if err != nil {
		return nil, &pack.OpError{Code: "encode-input", Message: err.Error()}
	}
	output, err := p.runtime.Invoke(ctx, p.call(job, pack.OpRenderPlan, input))
	if err != nil {
		return nil, pack.AsOpError(err)
	}
	var plan any
	if len(output) > 0 {
		if err := jsoncodec.Unmarshal(output, &plan); err != nil {
			return nil, &pack.OpError{Code: "decode-plan", Message: fmt.Sprintf("render_plan output is not JSON: %v", err)}
		}
	}
	if plan == nil {
		plan = map[string]any{}
	}
	return plan, nil
}

// encodePayload never fails the attempt: when the encode op errors or returns
// an unusable payload, the canonical message itself is shipped as JSON so the
// provider still receives something actionable.
func (p *Pipeline) encodePayload(ctx context.Context, job *Job, message, plan any) envelope.ProviderPayloadV1 {
	payload, err := p.invokeEncode(ctx, job, message, plan)
	if err == nil {
		return payload
	}

	p.log.Warn("encode failed, using passthrough payload", logging.LogFields{
		"provider": job.Provider,
		"job_id":   job.ID,
		"error":    err.Error(),
	})
	return passthroughPayload(message)
}

func (p *Pipeline) invokeEncode(ctx context.Context, job *Job, message, plan any) (envelope.ProviderPayloadV1, error) {
	input, err := jsoncodec.Marshal(envelope.EncodeInV1{V: 1, Message: message, Plan: plan})
	if err != nil {
		return envelope.ProviderPayloadV1{}, err
	}
	output, err := p.runtime.Invoke(ctx, p.call(job, pack.OpEncode, input))
	if err != nil {
		return envelope.ProviderPayloadV1{}, err
	}
	var out envelope.EncodeOutV1
	if err := jsoncodec.Unmarshal(output, &out); err != nil {
		return envelope.ProviderPayloadV1{}, fmt.Errorf("decode encode output: %w", err)
	}
	if !out.OK || out.Payload == nil {
		reason := out.Error
		if reason == "" {
			reason = "encode returned no payload"
		}
		return envelope.ProviderPayloadV1{}, fmt.Errorf("%s", reason)
	}
	return *out.Payload, nil
}

func (p *Pipeline) sendPayload(ctx context.Context, job *Job, payload envelope.ProviderPayloadV1) *pack.OpError {
	input, err := jsoncodec.Marshal(envelope.SendPayloadInV1{
		V:       1,
		Payload: payload,
		Tenant: envelope.TenantHint{
			Tenant:        job.Scope.Tenant,
			Team:          job.Scope.Team,
			CorrelationID: job.Message.CorrelationID,
		},
		ReplyScope: job.Message.ReplyScope,
	})
	if err != nil {
		return &pack.OpError{Code: "encode-input", Message: err.Error()}
	}

	output, err := p.runtime.Invoke(ctx, p.call(job, pack.OpSendPayload, input))
	if err != nil {
		return pack.AsOpError(err)
	}

	var out envelope.SendPayloadOutV1
	if err := jsoncodec.Unmarshal(output, &out); err != nil {
		return &pack.OpError{Code: "decode-output", Message: fmt.Sprintf("decode send_payload output: %v", err)}
	}
	if !out.OK {
		message := out.Message
		if message == "" {
			message = "send_payload reported failure"
		}
		return &pack.OpError{Code: "send-failed", Message: message, Retryable: out.Retryable}
	}
	return nil
}

func (p *Pipeline) call(job *Job, op string, input []byte) pack.Call {
	return pack.Call{
		Domain:        "messaging",
		Provider:      job.Provider,
		Op:            op,
		Tenant:        job.Scope.Tenant,
		Team:          job.Scope.Team,
		CorrelationID: job.Message.CorrelationID,
		Input:         input,
	}
}

func messageValue(msg *envelope.CanonicalMessage) (any, error) {
	encoded, err := jsoncodec.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var value any
	if err := jsoncodec.Unmarshal(encoded, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func passthroughPayload(message any) envelope.ProviderPayloadV1 {
	encoded, err := jsoncodec.Marshal(message)
	if err != nil {
		encoded = []byte("{}")
	}
	return envelope.ProviderPayloadV1{
		ContentType:  "application/json",
		BodyB64:      base64.StdEncoding.EncodeToString(encoded),
		MetadataJSON: string(encoded),
	}
}
