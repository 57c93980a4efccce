package svcmgr

import "os"

func writeExecutable(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o755)
}
