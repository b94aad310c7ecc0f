// Package stages implements the two pipeline stages and their orchestration.
//
// The build stage merges the head revision onto the base revision inside an
// ephemeral environment, runs the packaging procedure and hands the resulting
// archive off. The publish stage turns that archive into exactly one commit
// and tag in the distribution cache repository and pushes only the tag.
package stages
