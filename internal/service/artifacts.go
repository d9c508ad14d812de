package service

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"
)

// artifactsRoot is the controller-side directory artifacts are
// collected into, keyed by run working directory and job.
const artifactsRoot = "artifacts"

// Download copies artifacts out of the remote environment over SFTP.
// It must run before Teardown removes the remote directory.
func (e *SSHEnvironment) Download(remotePath, localPath string) error {
	sftpClient, err := sftp.NewClient(e.client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	info, err := sftpClient.Stat(remotePath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return recursiveDownload(sftpClient, remotePath, localPath)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
		return err
	}
	return downloadFile(sftpClient, remotePath, localPath)
}

func recursiveDownload(sftpClient *sftp.Client, remotePath, localPath string) error {
	files, err := sftpClient.ReadDir(remotePath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(localPath, os.ModePerm); err != nil {
		return err
	}

	for _, f := range files {
		remoteFilePath := filepath.Join(remotePath, f.Name())
		localFilePath := filepath.Join(localPath, f.Name())

		if f.IsDir() {
			if err := recursiveDownload(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		} else {
			if err := downloadFile(
				sftpClient, remoteFilePath, localFilePath,
			); err != nil {
				return err
			}
		}
	}

	return nil
}

func downloadFile(sftpClient *sftp.Client, remotePath, localPath string) error {
	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return err
	}
	defer remoteFile.Close()

	localFile, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer localFile.Close()

	if _, err := io.Copy(localFile, remoteFile); err != nil {
		return err
	}

	return nil
}

// Download copies artifacts out of a local environment with plain file
// copies.
func (e *LocalEnvironment) Download(srcPath, dstPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dstPath, os.ModePerm); err != nil {
			return err
		}
		return os.CopyFS(dstPath, os.DirFS(srcPath))
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), os.ModePerm); err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return nil
}
