package attendance

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"

	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
)

const qrSize = 256

// QRCode: 教室のスクリーン表示用。開いているセッションのコードだけを PNG にする
func (s *Service) QRCode(ctx context.Context, caller auth.Caller, id string) ([]byte, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(sess.TeacherID) {
		return nil, apierr.Forbidden("not the owner of this session")
	}
	if !sess.IsOpen(s.clock.Now()) {
		return nil, apierr.InvalidState("session is closed or expired")
	}
	return qrcode.Encode(sess.Code, qrcode.Medium, qrSize)
}
