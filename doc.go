/*
go-posenet decodes the output tensors of a multi-person PoseNet model into
labelled human skeletons and places screen overlays anchored on the decoded
landmarks.

The root package provides a read-only view over the model output buffers
(float32, float16 or affine quantized int8) and resolves the unlabelled
output list of an inference runtime into the four PoseNet tensors by their
channel count.  Decoding lives in the postprocess subpackage, the skeleton
topology in pose and landmark placement in overlay.

See example code and usage in the examples subdirectory.
*/
package posenet
