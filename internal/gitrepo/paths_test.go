package gitrepo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autosquash/internal/gitrepo"
)

const (
	testRelativePathCaseNameConstant  = "relative_path"
	testNestedPathCaseNameConstant    = "nested_path"
	testAbsolutePathCaseNameConstant  = "absolute_path"
	testEscapingPathCaseNameConstant  = "escaping_path"
	testMetadataPathCaseNameConstant  = "metadata_path"
	testEmptyPathCaseNameConstant     = "empty_path"
	testCleanedEscapeCaseNameConstant = "cleaned_escape"
)

func TestValidateRepositoryRelativePath(testInstance *testing.T) {
	repositoryRoot := testInstance.TempDir()

	testCases := []struct {
		name          string
		inputPath     string
		expectedPath  string
		expectUnsafe  bool
		expectInvalid bool
	}{
		{
			name:         testRelativePathCaseNameConstant,
			inputPath:    "service.go",
			expectedPath: "service.go",
		},
		{
			name:         testNestedPathCaseNameConstant,
			inputPath:    "pkg/./service.go",
			expectedPath: "pkg/service.go",
		},
		{
			name:         testAbsolutePathCaseNameConstant,
			inputPath:    "/etc/passwd",
			expectUnsafe: true,
		},
		{
			name:         testEscapingPathCaseNameConstant,
			inputPath:    "../outside.go",
			expectUnsafe: true,
		},
		{
			name:         testCleanedEscapeCaseNameConstant,
			inputPath:    "pkg/../../outside.go",
			expectUnsafe: true,
		},
		{
			name:         testMetadataPathCaseNameConstant,
			inputPath:    ".git/config",
			expectUnsafe: true,
		},
		{
			name:          testEmptyPathCaseNameConstant,
			inputPath:     "   ",
			expectInvalid: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			validatedPath, validationError := gitrepo.ValidateRepositoryRelativePath(repositoryRoot, testCase.inputPath)
			if testCase.expectUnsafe {
				var unsafeError gitrepo.UnsafePathError
				require.ErrorAs(testInstance, validationError, &unsafeError)
				return
			}
			if testCase.expectInvalid {
				var inputError gitrepo.InvalidRepositoryInputError
				require.ErrorAs(testInstance, validationError, &inputError)
				return
			}
			require.NoError(testInstance, validationError)
			require.Equal(testInstance, testCase.expectedPath, validatedPath)
		})
	}
}
