package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// toStatus maps the error taxonomy onto gRPC codes. Messages are the
// sentinel text so clients can map them back; invalid input keeps its
// detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, common.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, common.ErrInvalidState.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, common.ErrorNotFound.Error())
	case errors.Is(err, common.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, common.ErrStoreUnavailable.Error())
	case errors.Is(err, common.ErrPartialPurge):
		return status.Error(codes.Internal, common.ErrPartialPurge.Error())
	}

	for _, sentinel := range []error{common.ErrTokenExpired, common.ErrRefreshTokenExpired, common.ErrInvalidToken, common.ErrorUnauthorized} {
		if errors.Is(err, sentinel) {
			return status.Error(codes.Unauthenticated, sentinel.Error())
		}
	}
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}

// fail logs server-side failures and returns err as a status.
func (s *GRPCServer) fail(ctx context.Context, op string, err error) error {
	st := toStatus(err)
	switch status.Code(st) {
	case codes.Internal, codes.Unavailable, codes.Unknown:
		s.logger.Error(ctx, op+" failed", "error", err)
	default:
		s.logger.Debug(ctx, op+" rejected", "error", err)
	}
	return st
}

func owner(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, common.ErrorUnauthorized.Error())
	}
	return id, nil
}

func fileInfo(f models.StoredFile) api.FileInfo {
	return api.FileInfo{
		ID:             f.ID,
		Filename:       f.DisplayName,
		MimeType:       f.MimeType,
		Size:           f.Size,
		ContentHash:    f.ContentHash,
		State:          string(f.State),
		UploadedAt:     f.UploadedAt,
		LastAccessedAt: f.LastAccessedAt,
		TrashedAt:      f.TrashedAt,
	}
}

func fileInfos(list []models.StoredFile) []api.FileInfo {
	out := make([]api.FileInfo, 0, len(list))
	for _, f := range list {
		out = append(out, fileInfo(f))
	}
	return out
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {

	return &api.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {

	s.logger.Info(ctx, "Registration request", "username", req.Username)

	result, err := s.users.Register(ctx, req.Username, req.Verifier)
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	s.logger.Info(ctx, "Registered", "username", req.Username, "user_id", result.ID)
	return &api.RegisterResponse{UserID: result.ID}, nil

}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {

	tokens, err := s.users.Login(ctx, req.Username, req.Verifier)
	if err != nil {
		return nil, s.fail(ctx, "login", err)
	}

	return &api.LoginResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.LoginResponse, error) {

	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.fail(ctx, "refresh token", err)
	}

	return &api.LoginResponse{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil

}

func (s *GRPCServer) ListFiles(ctx context.Context, req *api.ListFilesRequest) (*api.ListFilesResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	state := models.StateActive
	if req.State != "" {
		if state, err = models.ParseLifecycleState(req.State); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	list, err := s.files.List(ctx, userID, state)
	if err != nil {
		return nil, s.fail(ctx, "list files", err)
	}
	return &api.ListFilesResponse{Files: fileInfos(list)}, nil
}

func (s *GRPCServer) TrashFile(ctx context.Context, req *api.FileRequest) (*api.FileResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.lifecycle.SoftDelete(ctx, userID, req.ID)
	if err != nil {
		return nil, s.fail(ctx, "trash file", err)
	}
	return &api.FileResponse{File: fileInfo(*f)}, nil
}

func (s *GRPCServer) RestoreFile(ctx context.Context, req *api.FileRequest) (*api.FileResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.lifecycle.Restore(ctx, userID, req.ID)
	if err != nil {
		return nil, s.fail(ctx, "restore file", err)
	}
	return &api.FileResponse{File: fileInfo(*f)}, nil
}

func (s *GRPCServer) PurgeFile(ctx context.Context, req *api.FileRequest) (*api.PurgeResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.lifecycle.Purge(ctx, userID, req.ID); err != nil {
		return nil, s.fail(ctx, "purge file", err)
	}
	return &api.PurgeResponse{}, nil
}

func (s *GRPCServer) Duplicates(ctx context.Context, req *api.DuplicatesRequest) (*api.DuplicatesResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.dedup.FindDuplicateGroups(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "find duplicates", err)
	}

	resp := &api.DuplicatesResponse{Groups: make([]api.DuplicateGroup, 0, len(groups))}
	for _, g := range groups {
		wasted := g.WastedBytes()
		resp.WastedBytes += wasted
		resp.Groups = append(resp.Groups, api.DuplicateGroup{
			ContentHash: g.ContentHash,
			Files:       fileInfos(g.Files),
			WastedBytes: wasted,
		})
	}
	return resp, nil
}

func (s *GRPCServer) Stats(ctx context.Context, req *api.StatsRequest) (*api.StatsResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := s.analytics.StorageSummary(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "storage summary", err)
	}
	categories, err := s.analytics.Categories(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "categories", err)
	}
	large, err := s.analytics.LargeFiles(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "large files", err)
	}
	usage, err := s.analytics.Usage(ctx, userID, s.now())
	if err != nil {
		return nil, s.fail(ctx, "usage", err)
	}
	wasted, err := s.dedup.WastedBytes(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "wasted bytes", err)
	}

	resp := &api.StatsResponse{
		Files:          summary.Files,
		TotalBytes:     summary.TotalBytes,
		DuplicateBytes: wasted,
		Categories:     make([]api.CategoryUsage, 0, len(categories)),
		LargeFiles:     fileInfos(large),
		Hottest:        fileInfos(usage.Hottest),
		Coldest:        fileInfos(usage.Coldest),
	}
	for _, c := range categories {
		resp.Categories = append(resp.Categories, api.CategoryUsage{Category: c.Category, Files: c.Files, TotalBytes: c.TotalBytes})
	}
	return resp, nil
}

func (s *GRPCServer) AuditLog(ctx context.Context, req *api.AuditLogRequest) (*api.AuditLogResponse, error) {
	userID, err := owner(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.audit.List(ctx, userID, models.AuditFilter{
		Action: models.ActionKind(req.Action),
		Search: req.Search,
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, s.fail(ctx, "audit log", err)
	}

	resp := &api.AuditLogResponse{
		Entries: make([]api.AuditEntry, 0, len(page.Records)),
		Total:   page.Total,
		Page:    page.Page,
		Pages:   page.Pages,
	}
	for _, r := range page.Records {
		resp.Entries = append(resp.Entries, api.AuditEntry{
			Action:    string(r.Action),
			Filename:  r.Filename,
			Outcome:   string(r.Outcome),
			Timestamp: r.Timestamp,
			IP:        r.Origin.IP,
			UserAgent: r.Origin.UserAgent,
		})
	}
	return resp, nil
}

// frameReader turns upload frames into a byte stream.
type frameReader struct {
	recv func() (*wrapperspb.BytesValue, error)
	buf  []byte
}

func (r *frameReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		frame, err := r.recv()
		if err != nil {
			return 0, err
		}
		r.buf = frame.GetValue()
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (s *GRPCServer) Upload(stream api.UploadStream) error {
	ctx := stream.Context()
	userID, err := owner(ctx)
	if err != nil {
		return err
	}

	md, _ := metadata.FromIncomingContext(ctx)
	h, err := api.ParseFileHeader(md)
	if err != nil {
		return s.fail(ctx, "upload", err)
	}

	meta := services.UploadMeta{
		Filename:    h.Filename,
		IV:          h.IV,
		Salt:        h.Salt,
		ContentHash: h.ContentHash,
		Size:        h.Size,
		MimeType:    h.MimeType,
	}
	f, err := s.files.Upload(ctx, userID, meta, &frameReader{recv: stream.Recv})
	if err != nil {
		return s.fail(ctx, "upload", err)
	}

	s.logger.Info(ctx, "Uploaded", "owner", userID, "id", f.ID, "size", f.Size)
	return stream.SendAndClose(&api.UploadResponse{File: fileInfo(*f)})
}

func (s *GRPCServer) Download(req *api.DownloadRequest, stream api.DownloadStream) error {
	ctx := stream.Context()
	userID, err := owner(ctx)
	if err != nil {
		return err
	}

	f, rc, err := s.files.Open(ctx, userID, req.ID, req.View)
	if err != nil {
		return s.fail(ctx, "download", err)
	}
	defer rc.Close()

	h := api.FileHeader{
		ID:          f.ID,
		Filename:    f.DisplayName,
		MimeType:    f.MimeType,
		IV:          f.Cipher.IV,
		Salt:        f.Cipher.Salt,
		ContentHash: f.ContentHash,
		Size:        f.Size,
	}
	if err := stream.SendHeader(h.MD()); err != nil {
		return err
	}

	buf := make([]byte, api.FrameSize)
	for {
		n, err := io.ReadFull(rc, buf)
		if n > 0 {
			if serr := stream.Send(wrapperspb.Bytes(buf[:n])); serr != nil {
				return serr
			}
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return s.fail(ctx, "download", fmt.Errorf("%w: read blob: %v", common.ErrStoreUnavailable, err))
		}
	}
}
