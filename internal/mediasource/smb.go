package mediasource

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"github.com/cloudsoda/go-smb2"
)

// smbAccessor serves one mounted SMB share. The session and mount are held
// for the accessor's lifetime; Close logs off and unmounts.
type smbAccessor struct {
	session *smb2.Session
	share   *smb2.Share
}

func dialSMB(ctx context.Context, cfg SourceConfig, cred Credential) (Accessor, error) {
	server := cfg.Host
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "445")
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cred.Username,
			Password: cred.Password,
			Domain:   cred.Domain,
		},
	}

	session, err := d.Dial(ctx, server)
	if err != nil {
		return nil, fmt.Errorf("mediasource: dialing SMB server %s: %w", server, err)
	}

	share, err := session.Mount(cfg.ShareName)
	if err != nil {
		if logoffErr := session.Logoff(); logoffErr != nil {
			_ = logoffErr
		}
		return nil, fmt.Errorf("mediasource: mounting SMB share %s: %w", cfg.ShareName, err)
	}

	return &smbAccessor{session: session, share: share}, nil
}

func (a *smbAccessor) List(ctx context.Context, dir string) ([]Entry, error) {
	infos, err := a.share.WithContext(ctx).ReadDir(toSMBPath(dir))
	if err != nil {
		return nil, translateSMBErr(err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    path.Join(dir, info.Name()),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func (a *smbAccessor) Stat(ctx context.Context, p string) (Entry, error) {
	info, err := a.share.WithContext(ctx).Stat(toSMBPath(p))
	if err != nil {
		return Entry{}, translateSMBErr(err)
	}
	return Entry{
		Name:    info.Name(),
		Path:    p,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (a *smbAccessor) Open(ctx context.Context, p string) (File, error) {
	f, err := a.share.WithContext(ctx).Open(toSMBPath(p))
	if err != nil {
		return nil, translateSMBErr(err)
	}
	return f, nil
}

func (a *smbAccessor) Close() error {
	umountErr := a.share.Umount()
	logoffErr := a.session.Logoff()
	if umountErr != nil {
		return fmt.Errorf("mediasource: unmounting SMB share: %w", umountErr)
	}
	if logoffErr != nil {
		return fmt.Errorf("mediasource: logging off SMB session: %w", logoffErr)
	}
	return nil
}

// toSMBPath normalizes a share-relative path for the SMB wire format.
func toSMBPath(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	return strings.ReplaceAll(p, "/", `\`)
}

func translateSMBErr(err error) error {
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}
