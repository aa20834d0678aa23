package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	unsafePathMessageTemplateConstant    = "path %q escapes the repository root"
	emptyRelativePathMessageConstant     = "relative path must not be empty"
	relativePathFieldNameConstant        = "relative path"
	parentDirectoryReferenceConstant     = ".."
	currentDirectoryReferenceConstant    = "."
	repositoryMetadataDirectoryConstant  = ".git"
	metadataPathMessageTemplateConstant  = "path %q targets repository metadata"
	absolutePathMessageTemplateConstant  = "path %q must be repository-relative"
	symlinkEscapeMessageTemplateConstant = "path %q resolves outside the repository root"
)

// UnsafePathError reports a repository-relative path that would escape or
// target repository metadata.
type UnsafePathError struct {
	Path    string
	Message string
}

// Error describes the rejected path.
func (pathError UnsafePathError) Error() string {
	return pathError.Message
}

// ValidateRepositoryRelativePath rejects absolute paths, paths escaping the
// repository root, and paths targeting the repository metadata directory.
// The cleaned repository-relative path is returned on success.
func ValidateRepositoryRelativePath(repositoryRoot string, relativePath string) (string, error) {
	trimmedRelativePath := strings.TrimSpace(relativePath)
	if len(trimmedRelativePath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: relativePathFieldNameConstant, Message: emptyRelativePathMessageConstant}
	}
	if filepath.IsAbs(trimmedRelativePath) {
		return "", UnsafePathError{Path: trimmedRelativePath, Message: fmt.Sprintf(absolutePathMessageTemplateConstant, trimmedRelativePath)}
	}

	cleanedPath := filepath.Clean(filepath.FromSlash(trimmedRelativePath))
	if cleanedPath == currentDirectoryReferenceConstant {
		return "", UnsafePathError{Path: trimmedRelativePath, Message: fmt.Sprintf(unsafePathMessageTemplateConstant, trimmedRelativePath)}
	}

	pathSegments := strings.Split(cleanedPath, string(filepath.Separator))
	if pathSegments[0] == parentDirectoryReferenceConstant {
		return "", UnsafePathError{Path: trimmedRelativePath, Message: fmt.Sprintf(unsafePathMessageTemplateConstant, trimmedRelativePath)}
	}
	if pathSegments[0] == repositoryMetadataDirectoryConstant {
		return "", UnsafePathError{Path: trimmedRelativePath, Message: fmt.Sprintf(metadataPathMessageTemplateConstant, trimmedRelativePath)}
	}

	if symlinkError := rejectSymlinkEscape(repositoryRoot, cleanedPath); symlinkError != nil {
		return "", symlinkError
	}

	return filepath.ToSlash(cleanedPath), nil
}

// rejectSymlinkEscape resolves the deepest existing ancestor of the candidate
// path and confirms it still sits under the repository root.
func rejectSymlinkEscape(repositoryRoot string, cleanedPath string) error {
	resolvedRoot, rootError := filepath.EvalSymlinks(repositoryRoot)
	if rootError != nil {
		return nil
	}

	candidatePath := filepath.Join(repositoryRoot, cleanedPath)
	existingAncestor := candidatePath
	for {
		if _, statError := os.Lstat(existingAncestor); statError == nil {
			break
		}
		parentPath := filepath.Dir(existingAncestor)
		if parentPath == existingAncestor {
			return nil
		}
		existingAncestor = parentPath
	}

	resolvedAncestor, resolveError := filepath.EvalSymlinks(existingAncestor)
	if resolveError != nil {
		return nil
	}

	relativeToRoot, relativeError := filepath.Rel(resolvedRoot, resolvedAncestor)
	if relativeError != nil || relativeToRoot == parentDirectoryReferenceConstant || strings.HasPrefix(relativeToRoot, parentDirectoryReferenceConstant+string(filepath.Separator)) {
		return UnsafePathError{Path: cleanedPath, Message: fmt.Sprintf(symlinkEscapeMessageTemplateConstant, cleanedPath)}
	}
	return nil
}
