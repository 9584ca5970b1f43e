package util

import (
	"bytes"
	"io"
	"os/exec"
)

func BufStdout(cmd *exec.Cmd) (stdout io.Reader, stdoutBuf *bytes.Buffer, err error) {
	stdoutBuf = &bytes.Buffer{}
	if stdout_, err_ := cmd.StdoutPipe(); err_ != nil {
		err = err_
		return
	} else {
		stdout = io.TeeReader(stdout_, stdoutBuf)
	}
	return
}

func BufStderr(cmd *exec.Cmd) (stderr io.Reader, stderrBuf *bytes.Buffer, err error) {
	stderrBuf = &bytes.Buffer{}
	if stderr_, err_ := cmd.StderrPipe(); err_ != nil {
		err = err_
		return
	} else {
		stderr = io.TeeReader(stderr_, stderrBuf)
	}
	return
}

func BufPipes(cmd *exec.Cmd) (stdout io.Reader, stdoutBuf *bytes.Buffer, stderr io.Reader, stderrBuf *bytes.Buffer, err error) {
	stdout, stdoutBuf, err = BufStdout(cmd)
	if err != nil {
		return
	}

	stderr, stderrBuf, err = BufStderr(cmd)
	return
}
