package modulestore

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/replicode/replicode/internal/errx"
)

// PullImage fetches the named OCI image and caches its single layer as
// a guest module, keyed by content digest. The returned digest is the
// same one Put would have produced from the layer bytes.
func (s *Store) PullImage(ctx context.Context, imageRef string) (string, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return "", errx.Wrap(ErrPullImage, err)
	}

	desc, err := remote.Get(ref,
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
		remote.WithContext(ctx),
	)
	if err != nil {
		return "", errx.Wrap(ErrPullImage, err)
	}

	img, err := desc.Image()
	if err != nil {
		return "", errx.Wrap(ErrPullImage, err)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", errx.Wrap(ErrPullImage, err)
	}
	if len(layers) == 0 {
		return "", ErrNoLayers
	}

	data, err := readLayer(layers[0])
	if err != nil {
		return "", errx.Wrap(ErrPullImage, err)
	}

	return s.Put(data, imageRef)
}

func readLayer(layer v1.Layer) ([]byte, error) {
	rc, err := layer.Uncompressed()
	if err != nil {
		return nil, fmt.Errorf("uncompressed layer: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
