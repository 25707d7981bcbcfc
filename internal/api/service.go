package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "cipherbox.v1.FileVault"

const (
	FileVault_Ping_FullMethodName         = "/" + ServiceName + "/Ping"
	FileVault_Register_FullMethodName     = "/" + ServiceName + "/Register"
	FileVault_Login_FullMethodName        = "/" + ServiceName + "/Login"
	FileVault_RefreshToken_FullMethodName = "/" + ServiceName + "/RefreshToken"
	FileVault_ListFiles_FullMethodName    = "/" + ServiceName + "/ListFiles"
	FileVault_TrashFile_FullMethodName    = "/" + ServiceName + "/TrashFile"
	FileVault_RestoreFile_FullMethodName  = "/" + ServiceName + "/RestoreFile"
	FileVault_PurgeFile_FullMethodName    = "/" + ServiceName + "/PurgeFile"
	FileVault_Duplicates_FullMethodName   = "/" + ServiceName + "/Duplicates"
	FileVault_Stats_FullMethodName        = "/" + ServiceName + "/Stats"
	FileVault_AuditLog_FullMethodName     = "/" + ServiceName + "/AuditLog"
	FileVault_Upload_FullMethodName       = "/" + ServiceName + "/Upload"
	FileVault_Download_FullMethodName     = "/" + ServiceName + "/Download"
)

// Public methods need no access token.
var publicMethods = map[string]bool{
	FileVault_Ping_FullMethodName:         true,
	FileVault_Register_FullMethodName:     true,
	FileVault_Login_FullMethodName:        true,
	FileVault_RefreshToken_FullMethodName: true,
}

// IsPublic reports whether fullMethod may be called without an access token.
func IsPublic(fullMethod string) bool {
	return publicMethods[fullMethod]
}

// Stream frames are raw ciphertext slices.
type (
	UploadStream         = grpc.ClientStreamingServer[wrapperspb.BytesValue, UploadResponse]
	DownloadStream       = grpc.ServerStreamingServer[wrapperspb.BytesValue]
	UploadClientStream   = grpc.ClientStreamingClient[wrapperspb.BytesValue, UploadResponse]
	DownloadClientStream = grpc.ServerStreamingClient[wrapperspb.BytesValue]
)

// FileVaultServer is the server API of the FileVault service.
type FileVaultServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*LoginResponse, error)
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	TrashFile(context.Context, *FileRequest) (*FileResponse, error)
	RestoreFile(context.Context, *FileRequest) (*FileResponse, error)
	PurgeFile(context.Context, *FileRequest) (*PurgeResponse, error)
	Duplicates(context.Context, *DuplicatesRequest) (*DuplicatesResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
	AuditLog(context.Context, *AuditLogRequest) (*AuditLogResponse, error)
	// Upload receives the ciphertext; file metadata travels in the
	// request headers (see FileHeader).
	Upload(UploadStream) error
	// Download sends the file's FileHeader as response headers, then
	// its ciphertext.
	Download(*DownloadRequest, DownloadStream) error
}

func RegisterFileVaultServer(s grpc.ServiceRegistrar, srv FileVaultServer) {
	s.RegisterService(&FileVault_ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(FileVaultServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FileVaultServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FileVaultServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func uploadHandler(srv any, stream grpc.ServerStream) error {
	return srv.(FileVaultServer).Upload(&grpc.GenericServerStream[wrapperspb.BytesValue, UploadResponse]{ServerStream: stream})
}

func downloadHandler(srv any, stream grpc.ServerStream) error {
	m := new(DownloadRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(FileVaultServer).Download(m, &grpc.GenericServerStream[DownloadRequest, wrapperspb.BytesValue]{ServerStream: stream})
}

var FileVault_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FileVaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", FileVaultServer.Ping),
		unary("Register", FileVaultServer.Register),
		unary("Login", FileVaultServer.Login),
		unary("RefreshToken", FileVaultServer.RefreshToken),
		unary("ListFiles", FileVaultServer.ListFiles),
		unary("TrashFile", FileVaultServer.TrashFile),
		unary("RestoreFile", FileVaultServer.RestoreFile),
		unary("PurgeFile", FileVaultServer.PurgeFile),
		unary("Duplicates", FileVaultServer.Duplicates),
		unary("Stats", FileVaultServer.Stats),
		unary("AuditLog", FileVaultServer.AuditLog),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Upload",
			Handler:       uploadHandler,
			ClientStreams: true,
		},
		{
			StreamName:    "Download",
			Handler:       downloadHandler,
			ServerStreams: true,
		},
	},
	Metadata: "cipherbox/v1/filevault",
}

// FileVaultClient is the client API of the FileVault service.
type FileVaultClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error)
	TrashFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*FileResponse, error)
	RestoreFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*FileResponse, error)
	PurgeFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*PurgeResponse, error)
	Duplicates(ctx context.Context, in *DuplicatesRequest, opts ...grpc.CallOption) (*DuplicatesResponse, error)
	Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
	AuditLog(ctx context.Context, in *AuditLogRequest, opts ...grpc.CallOption) (*AuditLogResponse, error)
	Upload(ctx context.Context, opts ...grpc.CallOption) (UploadClientStream, error)
	Download(ctx context.Context, in *DownloadRequest, opts ...grpc.CallOption) (DownloadClientStream, error)
}

type fileVaultClient struct {
	cc grpc.ClientConnInterface
}

// NewFileVaultClient returns a client whose calls use the vault codec.
func NewFileVaultClient(cc grpc.ClientConnInterface) FileVaultClient {
	return &fileVaultClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileVaultClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingRequest, PingResponse](ctx, c.cc, FileVault_Ping_FullMethodName, in, opts)
}

func (c *fileVaultClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterRequest, RegisterResponse](ctx, c.cc, FileVault_Register_FullMethodName, in, opts)
}

func (c *fileVaultClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginRequest, LoginResponse](ctx, c.cc, FileVault_Login_FullMethodName, in, opts)
}

func (c *fileVaultClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[RefreshTokenRequest, LoginResponse](ctx, c.cc, FileVault_RefreshToken_FullMethodName, in, opts)
}

func (c *fileVaultClient) ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesRequest, ListFilesResponse](ctx, c.cc, FileVault_ListFiles_FullMethodName, in, opts)
}

func (c *fileVaultClient) TrashFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*FileResponse, error) {
	return invoke[FileRequest, FileResponse](ctx, c.cc, FileVault_TrashFile_FullMethodName, in, opts)
}

func (c *fileVaultClient) RestoreFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*FileResponse, error) {
	return invoke[FileRequest, FileResponse](ctx, c.cc, FileVault_RestoreFile_FullMethodName, in, opts)
}

func (c *fileVaultClient) PurgeFile(ctx context.Context, in *FileRequest, opts ...grpc.CallOption) (*PurgeResponse, error) {
	return invoke[FileRequest, PurgeResponse](ctx, c.cc, FileVault_PurgeFile_FullMethodName, in, opts)
}

func (c *fileVaultClient) Duplicates(ctx context.Context, in *DuplicatesRequest, opts ...grpc.CallOption) (*DuplicatesResponse, error) {
	return invoke[DuplicatesRequest, DuplicatesResponse](ctx, c.cc, FileVault_Duplicates_FullMethodName, in, opts)
}

func (c *fileVaultClient) Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsRequest, StatsResponse](ctx, c.cc, FileVault_Stats_FullMethodName, in, opts)
}

func (c *fileVaultClient) AuditLog(ctx context.Context, in *AuditLogRequest, opts ...grpc.CallOption) (*AuditLogResponse, error) {
	return invoke[AuditLogRequest, AuditLogResponse](ctx, c.cc, FileVault_AuditLog_FullMethodName, in, opts)
}

func (c *fileVaultClient) Upload(ctx context.Context, opts ...grpc.CallOption) (UploadClientStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &FileVault_ServiceDesc.Streams[0], FileVault_Upload_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[wrapperspb.BytesValue, UploadResponse]{ClientStream: stream}, nil
}

func (c *fileVaultClient) Download(ctx context.Context, in *DownloadRequest, opts ...grpc.CallOption) (DownloadClientStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &FileVault_ServiceDesc.Streams[1], FileVault_Download_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[DownloadRequest, wrapperspb.BytesValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// FrameSize is the largest ciphertext slice carried by one stream frame.
const FrameSize = 1 << 20
