package grpcclient

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/face-login/internal/faceverifier"
	"github.com/example/face-login/internal/logging"
)

// VerifyMethod is the unary RPC exposed by the face verifier sidecar. Request
// and response are google.protobuf.Struct messages.
const VerifyMethod = "/faceverifier.FaceVerifier/Verify"

// DialFaceVerifier returns a ready-to-use gRPC verifier client.
func DialFaceVerifier(ctx context.Context, addr string, logger *zap.Logger) (faceverifier.Verifier, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_face_verifier", "", err)
		logger.Error("failed to dial face verifier", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewFaceVerifier(conn, logger), conn, nil
}

// NewFaceVerifier wraps an existing connection.
func NewFaceVerifier(conn grpc.ClientConnInterface, logger *zap.Logger) faceverifier.Verifier {
	return &grpcFaceVerifier{conn: conn, logger: logger.Named("faceverifier_grpc")}
}

type grpcFaceVerifier struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (g *grpcFaceVerifier) Verify(ctx context.Context, req faceverifier.Request) (*faceverifier.Verification, error) {
	probe, err := faceverifier.ReadImage(req.ProbePath)
	if err != nil {
		return nil, err
	}
	reference, err := faceverifier.ReadImage(req.ReferencePath)
	if err != nil {
		return nil, err
	}

	in, err := structpb.NewStruct(map[string]interface{}{
		"img1":              base64.StdEncoding.EncodeToString(probe),
		"img2":              base64.StdEncoding.EncodeToString(reference),
		"enforce_detection": req.EnforceDetection,
	})
	if err != nil {
		return nil, logging.NewOperationError("grpcclient.build_request", "", err)
	}

	out := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, VerifyMethod, in, out); err != nil {
		wrapped := logging.NewOperationError("grpcclient.verify", "", err)
		g.logger.Error("face verifier call failed", zap.Error(wrapped), zap.String("reference", req.ReferencePath))
		return nil, wrapped
	}

	fields := out.GetFields()
	return &faceverifier.Verification{
		Verified:  fields["verified"].GetBoolValue(),
		Distance:  fields["distance"].GetNumberValue(),
		Threshold: fields["threshold"].GetNumberValue(),
		Model:     fields["model"].GetStringValue(),
	}, nil
}
