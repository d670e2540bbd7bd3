package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/zerowrap"
)

// SMB pushes a directory tree to a Windows/Samba share with the
// smbclient binary. Destination paths look like "//server/share/path";
// credentials come from the environment or an smb credentials file,
// never from destination configuration.
type SMB struct {
	log zerowrap.Logger
}

// NewSMB creates the smb method.
func NewSMB(log zerowrap.Logger) *SMB {
	return &SMB{log: log}
}

// LinkCapable reports false for the same reason as scp: remote storage,
// mirror mode only.
func (s *SMB) LinkCapable() bool { return false }

// Transfer uploads sourcePath recursively to the share. The service
// and remote directory are split out of the destination path since
// smbclient takes them separately.
func (s *SMB) Transfer(ctx context.Context, sourcePath, destPath string) error {
	service, remoteDir, err := splitShare(destPath)
	if err != nil {
		return err
	}

	script := "recurse ON; prompt OFF"
	if remoteDir != "" {
		script += "; cd " + remoteDir
	}
	script += "; lcd " + sourcePath + "; mput *"

	return runCommand(ctx, s.log, "smbclient", service, "-N", "-c", script)
}

// splitShare splits "//server/share/sub/dir" into the "//server/share"
// service and the "sub/dir" remainder.
func splitShare(destPath string) (string, string, error) {
	trimmed := strings.TrimPrefix(destPath, "//")
	if trimmed == destPath {
		return "", "", fmt.Errorf("smb destination must look like //server/share[/dir]: %s", destPath)
	}
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("smb destination must look like //server/share[/dir]: %s", destPath)
	}
	service := "//" + parts[0] + "/" + parts[1]
	if len(parts) == 3 {
		return service, parts[2], nil
	}
	return service, "", nil
}
