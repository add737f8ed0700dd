package plugin

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/cadplugins/camtrack/animator"
	"github.com/cadplugins/camtrack/rimage/transform"
)

// DefaultRayLength is the length, in world units, of the ray geometry added to the document.
const DefaultRayLength = 1000.0

// RayObject is the ray geometry of one camera as it was last added to the document.
type RayObject struct {
	ID      uuid.UUID
	Name    string
	Camera  string
	Ray     transform.Ray
	Start   r3.Vector
	End     r3.Vector
	Version uint64
}

func rayObjectName(camera string) string {
	return fmt.Sprintf("ray_%s", camera)
}

// InjectRays adds the current ray of every tracking camera to the document. A camera's geometry
// is only rebuilt when its ray or the requested length changed; cameras without a ray are
// skipped. The returned objects are keyed by camera.
func (pc *Context) InjectRays(ctx context.Context, length float64) (map[string]RayObject, error) {
	if err := pc.checkLoaded(); err != nil {
		return nil, err
	}
	if length <= 0 {
		length = DefaultRayLength
	}
	out := map[string]RayObject{}
	for camera, ray := range pc.tracker.Rays(ctx) {
		deps, err := animator.FingerprintOf(ray, length)
		if err != nil {
			return nil, err
		}
		obj, err := pc.rays.Get(camera, deps, func() (RayObject, error) {
			obj := RayObject{
				ID:     uuid.New(),
				Name:   rayObjectName(camera),
				Camera: camera,
				Ray:    ray,
				Start:  ray.Origin,
				End:    ray.PointAt(length),
			}
			return obj, pc.host.AddRay(obj.Name, ray)
		})
		if err != nil {
			pc.logger.Warnw("cannot add ray", "camera", camera, "error", err)
			continue
		}
		obj.Version = pc.rays.Version(camera)
		out[camera] = obj
	}
	return out, nil
}
