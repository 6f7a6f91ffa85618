package bloom

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// RadialClasses is the number of distinct weights in a symmetric 5x5 kernel.
const RadialClasses = 6

// Kernel holds the per level weights of a bloom kernel tuned for a reference output height.
// Weights[level][class] is the weight of every tap whose offset maps to class, see RadialClass.
type Kernel struct {
	Height  int
	Weights [MaxLevels][RadialClasses]float32
}

type KernelTable []Kernel

var defaultKernels = [...]Kernel{
	{Height: 600, Weights: [MaxLevels][RadialClasses]float32{
		{0.537425, 0.0200664, 0.007208, 0.00159718, 0.000907513, 0.000275876},
		{0.102788, 0.0185028, 0.00291085, 0.000519275, 0.000519275, 0.000519275},
		{0.0704584, 0.0181098, 0.0023275, 0.0023275, 0.0015737, 0.0015737},
		{0.0117432, 0.0117432, 0.00226476, 0.00154524, 0.00116041, 0.00116041},
		{0.00746694, 0.00746694, 0.00171226, 0.00104832, 0.000766639, 0.000766639},
		{0.00478257, 0.00478257, 0.00100513, 0.000818812, 0.000397319, 0.000397319},
		{0.0037712, 0.0037712, 0.000490892, 0.000490892, 0.000490892, 0.000490892},
		{0.00108603, 0.00108603, 0.000924505, 0.000924505, 0.000141375, 0},
		{0.000604275, 0.000604275, 0.000604275, 0.000604275, 0.000604275, 0.000604275},
	}},
	{Height: 800, Weights: [MaxLevels][RadialClasses]float32{
		{0.368483, 0.0216534, 0.00816293, 0.00188936, 0.00108653, 0.000313168},
		{0.136253, 0.0234525, 0.00447162, 0.000355714, 0.000355714, 0.000355714},
		{0.115474, 0.0273796, 0.00361203, 0.00361203, 0.0024381, 0.0024381},
		{0.0185586, 0.0185586, 0.00364917, 0.00244913, 0.00186549, 0.00186549},
		{0.0120676, 0.0120676, 0.00279834, 0.00169768, 0.00125113, 0.00125113},
		{0.00782081, 0.00782081, 0.00165564, 0.00133947, 0.000653398, 0.000653398},
		{0.00620986, 0.00620986, 0.0008107, 0.0008107, 0.0008107, 0.0008107},
		{0.0017856, 0.0017856, 0.00153169, 0.00153169, 0.000231589, 0},
		{0.000999843, 0.000999843, 0.000999843, 0.000999843, 0.000999843, 0.000999843},
	}},
	{Height: 1000, Weights: [MaxLevels][RadialClasses]float32{
		{0.25617, 0.0203532, 0.00797079, 0.00192066, 0.0011167, 0.000302221},
		{0.153198, 0.0252384, 0.00568919, 5.11613e-05, 5.11613e-05, 5.11613e-05},
		{0.15413, 0.0348563, 0.00470555, 0.00470555, 0.00317817, 0.00317817},
		{0.0246407, 0.0246407, 0.0049419, 0.00326094, 0.00251954, 0.00251954},
		{0.0163845, 0.0163845, 0.00384115, 0.00230972, 0.00171516, 0.00171516},
		{0.010743, 0.010743, 0.00229079, 0.00184054, 0.000902617, 0.000902617},
		{0.00858938, 0.00858938, 0.00112463, 0.00112463, 0.00112463, 0.00112463},
		{0.00246603, 0.00246603, 0.0021316, 0.0021316, 0.000318642, 0},
		{0.00138965, 0.00138965, 0.00138965, 0.00138965, 0.00138965, 0.00138965},
	}},
	{Height: 1200, Weights: [MaxLevels][RadialClasses]float32{
		{0.183275, 0.018158, 0.00737877, 0.00184954, 0.00109975, 0.000302254},
		{0.155445, 0.0265729, 0.00631126, 0, 0, 0},
		{0.175386, 0.0406837, 0.00558637, 0.00558637, 0.00379344, 0.00379344},
		{0.0298822, 0.0298822, 0.00611925, 0.00396558, 0.0031087, 0.0031087},
		{0.0203221, 0.0203221, 0.00481553, 0.00287054, 0.00214781, 0.00214781},
		{0.0134794, 0.0134794, 0.00289523, 0.00230992, 0.00113896, 0.00113896},
		{0.0108519, 0.0108519, 0.00142504, 0.00142504, 0.00142504, 0.00142504},
		{0.00311065, 0.00311065, 0.0027096, 0.0027096, 0.000400401, 0},
		{0.00176416, 0.00176416, 0.00176416, 0.00176416, 0.00176416, 0.00176416},
	}},
	{Height: 1400, Weights: [MaxLevels][RadialClasses]float32{
		{0.13507, 0.0158288, 0.00665188, 0.00173212, 0.00105691, 0.000301843},
		{0.150223, 0.0270591, 0.00654116, 0, 0, 0},
		{0.188342, 0.0450055, 0.00639366, 0.00624994, 0.00430739, 0.00430739},
		{0.034393, 0.034393, 0.00718938, 0.00457885, 0.00363943, 0.00363943},
		{0.0239204, 0.0239204, 0.00572746, 0.00338533, 0.00255211, 0.00255211},
		{0.016048, 0.016048, 0.00347179, 0.00275076, 0.00136368, 0.00136368},
		{0.013009, 0.013009, 0.00171332, 0.00171332, 0.00171332, 0.00171332},
		{0.00372296, 0.00372296, 0.00326808, 0.00326808, 0.000477361, 0},
		{0.00212503, 0.00212503, 0.00212503, 0.00212503, 0.00212503, 0.00212503},
	}},
	{Height: 1600, Weights: [MaxLevels][RadialClasses]float32{
		{0.102246, 0.0136713, 0.00592178, 0.0015983, 0.0010003, 0.000299286},
		{0.141572, 0.0268007, 0.00657127, 0, 0, 0},
		{0.19617, 0.0482117, 0.00708174, 0.00676652, 0.00473424, 0.00473424},
		{0.0382987, 0.0382987, 0.00816851, 0.00511466, 0.00412131, 0.00412131},
		{0.0272343, 0.0272343, 0.00658765, 0.00386174, 0.00293298, 0.00293298},
		{0.0184784, 0.0184784, 0.00402643, 0.0031681, 0.00157908, 0.00157908},
		{0.0150825, 0.0150825, 0.00199223, 0.00199223, 0.00199223, 0.00199223},
		{0.00430923, 0.00430923, 0.00381212, 0.00381212, 0.00055036, 0},
		{0.00247558, 0.00247558, 0.00247558, 0.00247558, 0.00247558, 0.00247558},
	}},
}

// DefaultKernels returns the built in kernels for the reference heights 600 through 1600.
// The returned table is a copy and may be modified freely.
func DefaultKernels() KernelTable {
	table := make(KernelTable, len(defaultKernels))
	copy(table, defaultKernels[:])
	return table
}

// Nearest returns the kernel whose reference height is closest to height.
// Ties go to the entry that comes first in the table. Returns nil for an empty table.
func (t KernelTable) Nearest(height int) *Kernel {
	if len(t) == 0 {
		return nil
	}
	nearest := 0
	for i := 1; i < len(t); i++ {
		if absInt(t[i].Height-height) < absInt(t[nearest].Height-height) {
			nearest = i
		}
	}
	return &t[nearest]
}

func (t KernelTable) Validate() error {
	if len(t) == 0 {
		return errors.New("kernel table is empty")
	}
	seen := make(map[int]bool, len(t))
	for _, k := range t {
		if k.Height <= 0 {
			return fmt.Errorf("kernel reference height %d is not positive", k.Height)
		}
		if seen[k.Height] {
			return fmt.Errorf("duplicate kernel reference height %d", k.Height)
		}
		seen[k.Height] = true
	}
	return nil
}

// RadialClass maps a tap offset with |dx|, |dy| <= 2 to one of the six weight classes.
// The mapping is symmetric under sign flips and under swapping dx and dy.
func RadialClass(dx, dy int) int {
	ix, iy := absInt(dx), absInt(dy)
	if ix < iy {
		return tri(iy) + ix
	}
	return tri(ix) + iy
}

func tri(n int) int {
	return n * (n + 1) / 2
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FilterSet is the 25 tap kernel of one pyramid level.
// Each tap is (offsetU, offsetV, weight); dy is the outer and dx the inner loop, both running -2 to 2.
type FilterSet [TapCount]mgl32.Vec3

// FilterSet expands the weight row of level into taps with offsets normalized to a texture of
// rawWidth by rawHeight texels.
func (k *Kernel) FilterSet(level, rawWidth, rawHeight int) FilterSet {
	var fs FilterSet
	i := 0
	for dy := -TapRadius; dy <= TapRadius; dy++ {
		for dx := -TapRadius; dx <= TapRadius; dx++ {
			fs[i] = mgl32.Vec3{
				float32(dx) / float32(rawWidth),
				float32(dy) / float32(rawHeight),
				k.Weights[level][RadialClass(dx, dy)],
			}
			i++
		}
	}
	return fs
}

// Tap returns the integer texel offset and weight of tap i.
func (fs *FilterSet) Tap(i int) (dx, dy int, weight float32) {
	return i%TapSize - TapRadius, i/TapSize - TapRadius, fs[i][2]
}

func (fs *FilterSet) WeightSum() float32 {
	var sum float32
	for _, tap := range fs {
		sum += tap[2]
	}
	return sum
}
