package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestIsCodecError(t *testing.T) {
	assert.True(t, IsCodecError(MalformedHex("0xZZ", nil)))
	assert.True(t, IsCodecError(WrongMagic("XXXX", "BIO1")))
	assert.True(t, IsCodecError(fmt.Errorf("read level1: %w", ChecksumFailed(1, 2))))
	assert.False(t, IsCodecError(UnknownNode("FOO")))
	assert.False(t, IsCodecError(fmt.Errorf("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, MalformedHex("x", nil).HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, UnknownNode("x").HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NotFound("report").HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, Unavailable("down", nil).HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, PersistenceFailed("disk", nil).HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, ChecksumFailed(1, 2).HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, Configuration("rate", nil).HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, AuditChainBroken(3).HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, TelemetryFailed("link", nil).HTTPStatus())
}

func TestHTTPStatus_FollowsGRPCCode(t *testing.T) {
	tests := []struct {
		err  *TwinError
		code codes.Code
		http int
	}{
		{InvalidArgument("x", nil), codes.InvalidArgument, http.StatusBadRequest},
		{NotFound("x"), codes.NotFound, http.StatusNotFound},
		{Unavailable("x", nil), codes.Unavailable, http.StatusServiceUnavailable},
		{AuditChainBroken(1), codes.DataLoss, http.StatusInternalServerError},
		{NewTwinError(ErrCodeOK, "ok", nil), codes.OK, http.StatusOK},
	}
	for _, tt := range tests {
		st := tt.err.ToGRPCStatus()
		assert.Equal(t, tt.code, st.Code())
		assert.Equal(t, tt.err.Error(), st.Message())
		assert.Equal(t, tt.http, tt.err.HTTPStatus())
	}
}

func TestIsTwinError(t *testing.T) {
	assert.True(t, IsTwinError(fmt.Errorf("wrap: %w", NotFound("x"))))
	assert.False(t, IsTwinError(fmt.Errorf("plain")))
	assert.False(t, IsTwinError(nil))
}

func TestToGRPCStatus(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, WrongLength("level1", 3, 8).ToGRPCStatus().Code())
	assert.Equal(t, codes.DataLoss, ChecksumFailed(1, 2).ToGRPCStatus().Code())
	assert.Equal(t, codes.Internal, InternalError("boom", nil).ToGRPCStatus().Code())
}

func TestGetCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", UnsupportedVersion(9))
	assert.Equal(t, ErrCodeUnsupportedVersion, GetCode(err))
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("plain")))

	te := InternalError("outer", fmt.Errorf("inner"))
	assert.Equal(t, "outer: inner", te.Error())
	assert.Equal(t, "inner", te.Unwrap().Error())
}
