// Copyright 2026 The Spyglass Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/spyglass-obs/spyglass"
)

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that
// establishes the batch id, echoes it on the response headers, and hands
// the finished call to the capture pipeline after the handler returns.
// Request and response messages are captured through protojson as
// structured payloads. Handler panics are recovered, captured, and
// converted to codes.Internal errors.
func UnaryServerInterceptor(pipeline *spyglass.Pipeline, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)
	limitKB := pipeline.Config().SizeLimitKB

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		incomingMD, _ := metadata.FromIncomingContext(ctx)
		ctx = ensureSpanContext(ctx, incomingMD, cfg)

		ctx, batchID := pipeline.Begin(ctx, "", metadataSideChannel{md: incomingMD})
		_ = grpc.SetHeader(ctx, metadata.Pairs(spyglass.BatchMetadataKey, batchID))

		start := time.Now()
		capture := spyglass.Capture{
			BatchID:   batchID,
			Start:     start,
			Transport: spyglass.TransportRPC,
			Request: spyglass.RequestFacts{
				Method:      "GRPC",
				URI:         info.FullMethod,
				RemoteAddr:  peerAddress(ctx),
				Handler:     handlerName(info.FullMethod),
				Headers:     filterMetadata(incomingMD, cfg.metadataFilter),
				ContentType: grpcContentType,
				Body:        typeMarker(req),
			},
			RequestOutOfBand: messagePayload(req, limitKB),
		}

		// The deferred block runs after the handler, including on panic,
		// so every call is captured exactly once.
		defer func() {
			if r := recover(); r != nil {
				resp = nil
				err = status.Errorf(codes.Internal, "recovered from panic: %v", r)
			}
			capture.Response = responseFacts(resp, err)
			if err == nil {
				capture.ResponseOutOfBand = messagePayload(resp, limitKB)
			}
			pipeline.Complete(capture)
		}()

		resp, err = handler(ctx, req)
		return resp, err
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor capturing
// streaming calls. Message payloads are not captured; the entry records
// method, metadata, peer, duration, and final status. Handler panics are
// recovered and converted to codes.Internal errors.
func StreamServerInterceptor(pipeline *spyglass.Pipeline, opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)

	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx := ss.Context()
		incomingMD, _ := metadata.FromIncomingContext(ctx)
		ctx = ensureSpanContext(ctx, incomingMD, cfg)

		ctx, batchID := pipeline.Begin(ctx, "", metadataSideChannel{md: incomingMD})
		_ = ss.SetHeader(metadata.Pairs(spyglass.BatchMetadataKey, batchID))

		start := time.Now()
		capture := spyglass.Capture{
			BatchID:   batchID,
			Start:     start,
			Transport: spyglass.TransportRPC,
			Request: spyglass.RequestFacts{
				Method:      "GRPC",
				URI:         info.FullMethod,
				RemoteAddr:  peerAddress(ctx),
				Handler:     handlerName(info.FullMethod),
				Headers:     filterMetadata(incomingMD, cfg.metadataFilter),
				ContentType: grpcContentType,
			},
		}

		defer func() {
			if r := recover(); r != nil {
				err = status.Errorf(codes.Internal, "recovered from panic: %v", r)
			}
			capture.Response = responseFacts(nil, err)
			pipeline.Complete(capture)
		}()

		err = handler(srv, contextServerStream{ServerStream: ss, ctx: ctx})
		return err
	}
}

// UnaryClientInterceptor returns a grpc.UnaryClientInterceptor forwarding
// the caller's batch id into outgoing metadata so downstream services
// capture under the same batch.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		callOpts ...grpc.CallOption,
	) error {
		return invoker(propagateBatchID(ctx), method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor returns a grpc.StreamClientInterceptor forwarding
// the caller's batch id into outgoing metadata.
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		callOpts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(propagateBatchID(ctx), desc, cc, method, callOpts...)
	}
}

// ServerOptions returns grpc.ServerOptions installing the capture
// interceptors and, when enabled, otelgrpc stats handlers.
func ServerOptions(pipeline *spyglass.Pipeline, opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption

	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}

	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(pipeline, opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(pipeline, opts...)),
	)
	return serverOpts
}

// DialOptions returns grpc.DialOptions installing the batch-id forwarding
// interceptors and, when enabled, otelgrpc stats handlers.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption

	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}

	dialOpts = append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor()),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor()),
	)
	return dialOpts
}

// responseFacts assembles the response half of a capture from the handler
// result. Errors are captured as the JSON form of their gRPC status so the
// stored payload names the code and message.
func responseFacts(resp any, err error) spyglass.ResponseFacts {
	st := status.Convert(err)
	facts := spyglass.ResponseFacts{
		Status:      httpStatusFromCode(st.Code()),
		ContentType: grpcContentType,
	}
	if err != nil {
		if body, merr := marshalOpts.Marshal(st.Proto()); merr == nil {
			facts.ContentType = "application/json"
			facts.Body = body
		}
		return facts
	}
	facts.Body = typeMarker(resp)
	return facts
}

// propagateBatchID appends the context's batch id to outgoing metadata.
func propagateBatchID(ctx context.Context) context.Context {
	id, ok := spyglass.BatchIDFromContext(ctx)
	if !ok {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, spyglass.BatchMetadataKey, id)
}

// peerAddress reports the remote endpoint, "unknown" when absent.
func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// contextServerStream overrides the stream context so handlers observe the
// batch id established by the interceptor.
type contextServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (css contextServerStream) Context() context.Context {
	return css.ctx
}
