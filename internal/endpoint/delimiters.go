package endpoint

// Section delimiters shared by the prompt and the answer parser
const (
	DiffStart        = "<|diff_start|>"
	DiffEnd          = "<|diff_end|>"
	PatchStart       = "<|patch_start|>"
	PatchEnd         = "<|patch_end|>"
	CodeStart        = "<|code_start|>"
	CodeEnd          = "<|code_end|>"
	PatchedCodeStart = "<|patched_code_start|>"
	PatchedCodeEnd   = "<|patched_code_end|>"
)

// WrapPatchedCode encloses text in the patched code delimiters, as a model
// following the instructions would
func WrapPatchedCode(text string) string {
	return PatchedCodeStart + "\n" + text + PatchedCodeEnd
}
